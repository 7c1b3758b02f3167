package models

import (
	"time"

	"github.com/linskybing/gpulab/docstore"
)

type GPUStatus string

const (
	GPUStatusAvailable GPUStatus = "available"
	GPUStatusInUse     GPUStatus = "in-use"
)

// Occupant is one entry of a GPU's occupant list, in join order.
type Occupant struct {
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	JoinedAt  time.Time `json:"joined_at"`
}

// GPU is one document of the gpus collection. Status is derived from
// Occupants on every write path; Occupants is the source of truth.
type GPU struct {
	ID               string     `json:"id" yaml:"id"`
	Name             string     `json:"name" yaml:"name"`
	Address          string     `json:"address" yaml:"address"`
	Status           GPUStatus  `json:"status" yaml:"-"`
	Occupants        []Occupant `json:"occupants" yaml:"-"`
	SessionStartedAt *time.Time `json:"session_started_at" yaml:"-"`
}

func (g GPU) HasOccupant(studentID string) bool {
	_, ok := g.OccupantByID(studentID)
	return ok
}

func (g GPU) OccupantByID(studentID string) (Occupant, bool) {
	for _, o := range g.Occupants {
		if o.StudentID == studentID {
			return o, true
		}
	}
	return Occupant{}, false
}

func (o Occupant) ToDoc() docstore.Doc {
	return docstore.Doc{
		"student_id": o.StudentID,
		"name":       o.Name,
		"joined_at":  o.JoinedAt,
	}
}

// OccupantDocs re-encodes an occupant list for a full-list write.
func OccupantDocs(occupants []Occupant) []interface{} {
	out := make([]interface{}, len(occupants))
	for i, o := range occupants {
		out[i] = o.ToDoc()
	}
	return out
}

func (g GPU) ToDoc() docstore.Doc {
	doc := docstore.Doc{
		"name":               g.Name,
		"address":            g.Address,
		"status":             string(g.Status),
		"occupants":          OccupantDocs(g.Occupants),
		"session_started_at": nil,
	}
	if g.SessionStartedAt != nil {
		doc["session_started_at"] = *g.SessionStartedAt
	}
	return doc
}

func GPUFromDoc(id string, d docstore.Doc) GPU {
	g := GPU{
		ID:      id,
		Name:    d.String("name"),
		Address: d.String("address"),
		Status:  GPUStatus(d.String("status")),
	}
	if raw, ok := d["occupants"].([]interface{}); ok {
		for _, entry := range raw {
			m, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			od := docstore.Doc(m)
			g.Occupants = append(g.Occupants, Occupant{
				StudentID: od.String("student_id"),
				Name:      od.String("name"),
				JoinedAt:  od.Time("joined_at"),
			})
		}
	}
	if t := d.Time("session_started_at"); !t.IsZero() {
		g.SessionStartedAt = &t
	}
	return g
}
