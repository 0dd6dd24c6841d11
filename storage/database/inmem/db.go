// Package inmemdb implements the repositories on top of in-process maps.
// It is used by the tests and for local runs without Postgres.
package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/user"
)

// DB guards every table with a single lock so multi-table writes are atomic.
type DB struct {
	mu          sync.RWMutex
	users       map[string]*user.User
	forms       map[string]*form.Form
	questions   map[string]*form.Question
	submissions map[string]*form.Submission
	responses   map[string]*form.Response
}

func Open() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		forms:       make(map[string]*form.Form),
		questions:   make(map[string]*form.Question),
		submissions: make(map[string]*form.Submission),
		responses:   make(map[string]*form.Response),
	}
}

// Truncate empties every table.
func (db *DB) Truncate() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]*user.User)
	db.forms = make(map[string]*form.Form)
	db.questions = make(map[string]*form.Question)
	db.submissions = make(map[string]*form.Submission)
	db.responses = make(map[string]*form.Response)
}

// deleteFormCascade removes a form with its questions, submissions and responses.
// The caller must hold the write lock.
func (db *DB) deleteFormCascade(formID string) {
	for id, sub := range db.submissions {
		if sub.FormID == formID {
			db.deleteSubmissionCascade(id)
		}
	}
	for id, q := range db.questions {
		if q.FormID == formID {
			delete(db.questions, id)
			for rid, resp := range db.responses {
				if resp.QuestionID == id {
					delete(db.responses, rid)
				}
			}
		}
	}
	delete(db.forms, formID)
}

// The caller must hold the write lock.
func (db *DB) deleteSubmissionCascade(subID string) {
	for rid, resp := range db.responses {
		if resp.SubmissionID == subID {
			delete(db.responses, rid)
		}
	}
	delete(db.submissions, subID)
}

// lessFunc compares two rows on a single field: -1, 0 or 1.
type lessFunc func(i, j int, field string) int

// sortRows sorts n rows by the orderings, falling back to dflt when none applies.
func sortRows(n int, swap func(i, j int), cmp lessFunc, ordering []core.DBOrdering, dflt core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{dflt}
	}
	sort.Sort(rowSorter{n: n, swap: swap, less: func(i, j int) bool {
		for _, ord := range ordering {
			c := cmp(i, j, ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	}})
}

type rowSorter struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (s rowSorter) Len() int           { return s.n }
func (s rowSorter) Swap(i, j int)      { s.swap(i, j) }
func (s rowSorter) Less(i, j int) bool { return s.less(i, j) }

func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
