// Package services talks to the remote video generation service.
//
// # Remote Client
//
// [RemoteClient] is the workflow a job pipeline drives: upload an asset, submit a generation,
// poll it, optionally request an upscale, download the artifact and delete transient media.
// [LabsClient] implements it over the JSON API and also implements credentials.TokenFetcher, exchanging an
// account's session cookie for a bearer token.
//
// # Transport
//
// Each proxy route gets its own [http.Transport]. Authorized calls wrap it in an [oauth2] client
// with a static bearer token; requests for one account are paced by a [rate.Limiter].
//
// # Error Handling
//
// Every failure is a [shared.Error] so retry policies can classify it:
//   - 401 and 403 responses are [shared.KindCredential]
//   - 408, 429 and 5xx responses are [shared.KindServer]
//   - other non-2xx responses and malformed bodies are [shared.KindBadRequest]
//   - failed round trips are [shared.KindNetwork] or [shared.KindTimeout]
//
// Downloads are written to a ".part" file and renamed once complete, so a failed download never
// leaves a truncated artifact behind.
package services
