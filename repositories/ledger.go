package repositories

import (
	"context"
	"errors"
	"sort"

	"github.com/linskybing/gpulab/docstore"
	"github.com/linskybing/gpulab/models"
)

const StudentCollection = "students"

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrNegativeAccrual = errors.New("accrual delta must be non-negative")
)

// LedgerRepo is the per-student account ledger: quota, permission flag and
// cumulative usage over the students collection.
type LedgerRepo interface {
	Get(ctx context.Context, studentID string) (models.Student, error)
	List(ctx context.Context) ([]models.Student, error)
	Subscribe(ctx context.Context, studentID string) (<-chan models.Student, func())
	// EnsureProvisioned creates the record when absent and returns the
	// current one otherwise. Create-if-absent, never create-or-overwrite:
	// under concurrent invocation exactly one writer creates.
	EnsureProvisioned(ctx context.Context, defaults models.Student) (models.Student, bool, error)
	// Accrue adds delta seconds to the stored total and returns the new
	// total. Read-then-write; the one-GPU-per-student invariant keeps it
	// effectively single-writer per student.
	Accrue(ctx context.Context, studentID string, delta float64) (float64, error)
	// SetPolicy partially updates quota and/or permission, nothing else.
	SetPolicy(ctx context.Context, studentID string, hourLimit *float64, permission *bool) error
}

type StoreLedgerRepo struct {
	store docstore.Store
}

func NewStoreLedgerRepo(store docstore.Store) *StoreLedgerRepo {
	return &StoreLedgerRepo{store: store}
}

func (r *StoreLedgerRepo) Get(ctx context.Context, studentID string) (models.Student, error) {
	doc, err := r.store.Get(ctx, StudentCollection, studentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Student{}, ErrStudentNotFound
	}
	if err != nil {
		return models.Student{}, err
	}
	return models.StudentFromDoc(studentID, doc), nil
}

func (r *StoreLedgerRepo) List(ctx context.Context) ([]models.Student, error) {
	docs, err := r.store.List(ctx, StudentCollection)
	if err != nil {
		return nil, err
	}
	students := make([]models.Student, 0, len(docs))
	for id, doc := range docs {
		students = append(students, models.StudentFromDoc(id, doc))
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (r *StoreLedgerRepo) Subscribe(ctx context.Context, studentID string) (<-chan models.Student, func()) {
	raw, cancel := r.store.SubscribeDoc(ctx, StudentCollection, studentID)
	out := make(chan models.Student, 16)
	go func() {
		defer close(out)
		for doc := range raw {
			if doc == nil {
				continue
			}
			student := models.StudentFromDoc(studentID, doc)
			select {
			case out <- student:
			default:
				select {
				case <-out:
				default:
				}
				out <- student
			}
		}
	}()
	return out, cancel
}

func (r *StoreLedgerRepo) EnsureProvisioned(ctx context.Context, defaults models.Student) (models.Student, bool, error) {
	created, err := r.store.CreateIfAbsent(ctx, StudentCollection, defaults.StudentID, defaults.ToDoc())
	if err != nil {
		return models.Student{}, false, err
	}
	if created {
		return defaults, true, nil
	}
	existing, err := r.Get(ctx, defaults.StudentID)
	return existing, false, err
}

func (r *StoreLedgerRepo) Accrue(ctx context.Context, studentID string, delta float64) (float64, error) {
	if delta < 0 {
		return 0, ErrNegativeAccrual
	}
	current, err := r.Get(ctx, studentID)
	if err != nil {
		return 0, err
	}
	total := current.TotalUsageSeconds + delta
	err = r.store.Update(ctx, StudentCollection, studentID, docstore.Doc{
		"total_usage_seconds": total,
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *StoreLedgerRepo) SetPolicy(ctx context.Context, studentID string, hourLimit *float64, permission *bool) error {
	fields := docstore.Doc{}
	if hourLimit != nil {
		fields["monthly_hour_limit"] = *hourLimit
	}
	if permission != nil {
		fields["has_access_permission"] = *permission
	}
	if len(fields) == 0 {
		return nil
	}
	err := r.store.Update(ctx, StudentCollection, studentID, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrStudentNotFound
	}
	return err
}
