package file

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
)

// FlowRepository stores one JSON file per flow version under flows/.
type FlowRepository struct {
	persistence *Persistence
}

func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.loadAll()
}

func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.load(id)
}

func (r *FlowRepository) GetActive(_ context.Context) (*models.Flow, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	flows, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	for _, f := range flows {
		if f.Status == models.FlowStatusActive {
			return f, nil
		}
	}

	return nil, nil
}

func (r *FlowRepository) MaxVersion(_ context.Context) (int, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	flows, err := r.loadAll()
	if err != nil {
		return 0, err
	}

	maxVersion := 0
	for _, f := range flows {
		if f.Version > maxVersion {
			maxVersion = f.Version
		}
	}

	return maxVersion, nil
}

func (r *FlowRepository) Save(_ context.Context, f *models.Flow) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.persistence.writeJSON(r.persistence.dir("flows", f.ID+".json"), f)
}

func (r *FlowRepository) Delete(_ context.Context, id string) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	err := os.Remove(r.persistence.dir("flows", id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// Activate archives the current active flow and activates the target under
// one lock acquisition, so a reader never observes two active versions.
func (r *FlowRepository) Activate(_ context.Context, flowID, actor string, at time.Time) (*models.Flow, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	target, err := r.load(flowID)
	if err != nil {
		return nil, err
	}

	if target == nil {
		return nil, persistence.NewFlowError("Activate", flowID, persistence.ErrFlowNotFound)
	}

	flows, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	var previous *models.Flow

	for _, f := range flows {
		if f.Status == models.FlowStatusActive && f.ID != flowID {
			previous = f

			break
		}
	}

	if previous != nil {
		previous.Status = models.FlowStatusArchived
		previous.UpdatedAt = at

		if err := r.persistence.writeJSON(r.persistence.dir("flows", previous.ID+".json"), previous); err != nil {
			return nil, err
		}
	}

	target.Status = models.FlowStatusActive
	target.ActivatedBy = actor
	target.ActivatedAt = &at
	target.UpdatedAt = at

	if err := r.persistence.writeJSON(r.persistence.dir("flows", target.ID+".json"), target); err != nil {
		return nil, err
	}

	return previous, nil
}

func (r *FlowRepository) load(id string) (*models.Flow, error) {
	var f models.Flow

	found, err := r.persistence.readJSON(r.persistence.dir("flows", id+".json"), &f)
	if err != nil || !found {
		return nil, err
	}

	return &f, nil
}

func (r *FlowRepository) loadAll() ([]*models.Flow, error) {
	paths, err := r.persistence.listJSON(r.persistence.dir("flows"))
	if err != nil {
		return nil, err
	}

	flows := make([]*models.Flow, 0, len(paths))

	for _, path := range paths {
		var f models.Flow

		if _, err := r.persistence.readJSON(path, &f); err != nil {
			return nil, err
		}

		flows = append(flows, &f)
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].Version < flows[j].Version
	})

	return flows, nil
}
