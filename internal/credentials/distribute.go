package credentials

import "github.com/desertthunder/vbx/internal/models"

// Assignment is the ordered work given to one account.
type Assignment struct {
	Account *models.Account
	Jobs    []models.Job
}

// Count is the number of assigned jobs.
func (a Assignment) Count() int { return len(a.Jobs) }

// Pair binds one job to the account that runs it.
type Pair struct {
	Job     models.Job
	Account *models.Account
}

// Distribution maps accounts to their jobs. It is built once per batch and never modified afterward.
type Distribution struct {
	Assignments []Assignment
	index       map[string]int
}

func newDistribution(assignments []Assignment) *Distribution {
	d := &Distribution{Assignments: assignments, index: make(map[string]int, len(assignments))}
	for i, a := range assignments {
		d.index[a.Account.Name] = i
	}
	return d
}

// Get returns the assignment for the named account.
func (d *Distribution) Get(name string) (Assignment, bool) {
	i, ok := d.index[name]
	if !ok {
		return Assignment{}, false
	}
	return d.Assignments[i], true
}

// Len is the total number of jobs across all accounts.
func (d *Distribution) Len() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, a := range d.Assignments {
		n += len(a.Jobs)
	}
	return n
}

// Sizes returns the bucket sizes in account order.
func (d *Distribution) Sizes() []int {
	sizes := make([]int, len(d.Assignments))
	for i, a := range d.Assignments {
		sizes[i] = len(a.Jobs)
	}
	return sizes
}

// Pairs returns every (job, account) pair in dispatch order: the first job of every bucket,
// then the second of every bucket, and so on. Early concurrency therefore spreads across accounts.
func (d *Distribution) Pairs() []Pair {
	pairs := make([]Pair, 0, d.Len())
	for i := 0; ; i++ {
		added := false
		for _, a := range d.Assignments {
			if i < len(a.Jobs) {
				pairs = append(pairs, Pair{Job: a.Jobs[i], Account: a.Account})
				added = true
			}
		}
		if !added {
			return pairs
		}
	}
}

// Distribute slices jobs contiguously across accounts: the first N mod K accounts receive
// ceil(N/K) jobs and the rest floor(N/K), preserving input order. With fewer jobs than accounts
// only the first N accounts receive work. An empty account list yields an empty distribution.
func Distribute(jobs []models.Job, accounts []*models.Account) *Distribution {
	if len(accounts) == 0 || len(jobs) == 0 {
		return newDistribution(nil)
	}

	k := len(accounts)
	if len(jobs) < k {
		k = len(jobs)
	}
	per, extra := len(jobs)/k, len(jobs)%k

	assignments := make([]Assignment, 0, k)
	start := 0
	for i := range k {
		size := per
		if i < extra {
			size++
		}
		bucket := make([]models.Job, size)
		copy(bucket, jobs[start:start+size])
		assignments = append(assignments, Assignment{Account: accounts[i], Jobs: bucket})
		start += size
	}
	return newDistribution(assignments)
}
