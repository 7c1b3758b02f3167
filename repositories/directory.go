package repositories

import (
	"context"
	"errors"
	"sort"

	"github.com/linskybing/gpulab/docstore"
	"github.com/linskybing/gpulab/models"
)

const GPUCollection = "gpus"

var (
	ErrGPUNotFound   = errors.New("gpu not found")
	ErrNotAnOccupant = errors.New("student is not an occupant of this gpu")
)

// DirectoryRepo is the live GPU directory: the gpus collection plus its
// occupancy mutations. Writes are last-writer-wins at the field level; callers
// validate preconditions against their latest snapshot before mutating.
type DirectoryRepo interface {
	Snapshot(ctx context.Context) ([]models.GPU, error)
	Get(ctx context.Context, gpuID string) (models.GPU, error)
	// Subscribe pushes a full directory snapshot after every change. The
	// stream only ends when the cancel func is called.
	Subscribe(ctx context.Context) (<-chan []models.GPU, func())
	// Acquire makes the student the sole occupant and opens a new occupancy
	// episode. The caller must have seen the GPU available; two racing
	// acquires both succeed here and the last write wins.
	Acquire(ctx context.Context, gpuID, studentID, name string) error
	// Join appends the student to the current occupant list.
	Join(ctx context.Context, gpuID, studentID, name string) error
	// Leave removes the student; when the list empties the episode is
	// closed (status available, session_started_at cleared).
	Leave(ctx context.Context, gpuID, studentID string) error
	SeedIfEmpty(ctx context.Context, gpus []models.GPU) (bool, error)
}

type StoreDirectoryRepo struct {
	store docstore.Store
}

func NewStoreDirectoryRepo(store docstore.Store) *StoreDirectoryRepo {
	return &StoreDirectoryRepo{store: store}
}

func (r *StoreDirectoryRepo) Snapshot(ctx context.Context) ([]models.GPU, error) {
	docs, err := r.store.List(ctx, GPUCollection)
	if err != nil {
		return nil, err
	}
	return gpusFromDocs(docs), nil
}

func (r *StoreDirectoryRepo) Get(ctx context.Context, gpuID string) (models.GPU, error) {
	doc, err := r.store.Get(ctx, GPUCollection, gpuID)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.GPU{}, ErrGPUNotFound
	}
	if err != nil {
		return models.GPU{}, err
	}
	return models.GPUFromDoc(gpuID, doc), nil
}

func (r *StoreDirectoryRepo) Subscribe(ctx context.Context) (<-chan []models.GPU, func()) {
	raw, cancel := r.store.Subscribe(ctx, GPUCollection)
	out := make(chan []models.GPU, 16)
	go func() {
		defer close(out)
		for docs := range raw {
			select {
			case out <- gpusFromDocs(docs):
			default:
				select {
				case <-out:
				default:
				}
				out <- gpusFromDocs(docs)
			}
		}
	}()
	return out, cancel
}

func (r *StoreDirectoryRepo) Acquire(ctx context.Context, gpuID, studentID, name string) error {
	occupant := docstore.Doc{
		"student_id": studentID,
		"name":       name,
		"joined_at":  docstore.ServerTimestamp,
	}
	err := r.store.Update(ctx, GPUCollection, gpuID, docstore.Doc{
		"status":             string(models.GPUStatusInUse),
		"occupants":          []interface{}{occupant},
		"session_started_at": docstore.ServerTimestamp,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrGPUNotFound
	}
	return err
}

func (r *StoreDirectoryRepo) Join(ctx context.Context, gpuID, studentID, name string) error {
	gpu, err := r.Get(ctx, gpuID)
	if err != nil {
		return err
	}
	occupants := models.OccupantDocs(gpu.Occupants)
	occupants = append(occupants, docstore.Doc{
		"student_id": studentID,
		"name":       name,
		"joined_at":  docstore.ServerTimestamp,
	})
	return r.store.Update(ctx, GPUCollection, gpuID, docstore.Doc{
		"status":    string(models.GPUStatusInUse),
		"occupants": occupants,
	})
}

func (r *StoreDirectoryRepo) Leave(ctx context.Context, gpuID, studentID string) error {
	gpu, err := r.Get(ctx, gpuID)
	if err != nil {
		return err
	}
	if !gpu.HasOccupant(studentID) {
		return ErrNotAnOccupant
	}
	remaining := make([]models.Occupant, 0, len(gpu.Occupants))
	for _, o := range gpu.Occupants {
		if o.StudentID != studentID {
			remaining = append(remaining, o)
		}
	}
	if len(remaining) == 0 {
		return r.store.Update(ctx, GPUCollection, gpuID, docstore.Doc{
			"status":             string(models.GPUStatusAvailable),
			"occupants":          []interface{}{},
			"session_started_at": nil,
		})
	}
	return r.store.Update(ctx, GPUCollection, gpuID, docstore.Doc{
		"occupants": models.OccupantDocs(remaining),
	})
}

func (r *StoreDirectoryRepo) SeedIfEmpty(ctx context.Context, gpus []models.GPU) (bool, error) {
	existing, err := r.store.List(ctx, GPUCollection)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	for _, gpu := range gpus {
		gpu.Status = models.GPUStatusAvailable
		gpu.Occupants = nil
		gpu.SessionStartedAt = nil
		if _, err := r.store.CreateIfAbsent(ctx, GPUCollection, gpu.ID, gpu.ToDoc()); err != nil {
			return false, err
		}
	}
	return true, nil
}

func gpusFromDocs(docs map[string]docstore.Doc) []models.GPU {
	gpus := make([]models.GPU, 0, len(docs))
	for id, doc := range docs {
		gpus = append(gpus, models.GPUFromDoc(id, doc))
	}
	sort.Slice(gpus, func(i, j int) bool { return gpus[i].ID < gpus[j].ID })
	return gpus
}
