// Package voicedb stores enrolled voice profiles and matches probe
// embeddings against them.
//
// A [Person] is a durable identity with one or more voice profiles; each
// profile is a unit-norm embedding captured at enrollment time. The
// per-person centroid (normalized mean of all profiles) is derived on read,
// never stored, so appending a profile immediately shifts future matches.
//
// # Key Layout
//
//	person:{id}            → msgpack-encoded Person
//	alias:{folded name}    → person id
//
// The alias map lets a human reply of "dana", "Dana" or "DANA" resolve to
// the same person.
package voicedb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/earshothq/earshot/pkg/kv"
)

// ErrNotFound is returned when a person does not exist.
var ErrNotFound = errors.New("voicedb: person not found")

// Profile is one enrolled voice embedding with provenance.
type Profile struct {
	// Vector is the unit-norm voice embedding.
	Vector []float32 `json:"vector" msgpack:"vector"`

	// Source records where the embedding came from
	// (e.g., "reply:msg_1081", "import").
	Source string `json:"source,omitempty" msgpack:"source,omitempty"`

	// CreatedAt is the enrollment time.
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
}

// Person is a durable identity with enrolled voice profiles.
// Profiles are append-only; earshot never rewrites or deletes them.
type Person struct {
	// ID is the stable identifier (UUID).
	ID string `json:"id" msgpack:"id"`

	// Name is the canonical display name (first name enrolled).
	Name string `json:"name" msgpack:"name"`

	// Aliases are alternate names that resolve to this person,
	// including the canonical name.
	Aliases []string `json:"aliases,omitempty" msgpack:"aliases,omitempty"`

	// Profiles are the enrolled voice embeddings, oldest first.
	Profiles []Profile `json:"profiles" msgpack:"profiles"`
}

// Centroid returns the normalized mean of the person's profile vectors,
// or nil if the person has no profiles.
func (p *Person) Centroid() []float32 {
	if len(p.Profiles) == 0 {
		return nil
	}
	dim := len(p.Profiles[0].Vector)
	sum := make([]float32, dim)
	for _, prof := range p.Profiles {
		for i, v := range prof.Vector {
			sum[i] += v
		}
	}
	n := float32(len(p.Profiles))
	for i := range sum {
		sum[i] /= n
	}
	return Normalize(sum)
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// FoldName canonicalizes a name for alias lookups.
func FoldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Store persists people and their voice profiles in a kv.Store.
type Store struct {
	kv kv.Store
}

// NewStore creates a Store over the given kv backend.
func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

func personKey(id string) kv.Key  { return kv.Key{"person", id} }
func aliasKey(name string) kv.Key { return kv.Key{"alias", FoldName(name)} }

// Get returns the person with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Person, error) {
	raw, err := s.kv.Get(ctx, personKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("voicedb: get person %s: %w", id, err)
	}
	var p Person
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("voicedb: decode person %s: %w", id, err)
	}
	return &p, nil
}

// Resolve returns the person a name refers to, via the alias map.
func (s *Store) Resolve(ctx context.Context, name string) (*Person, error) {
	id, err := s.kv.Get(ctx, aliasKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("voicedb: resolve %q: %w", name, err)
	}
	return s.Get(ctx, string(id))
}

// All returns every enrolled person, ordered by ID.
func (s *Store) All(ctx context.Context) ([]*Person, error) {
	var people []*Person
	for entry, err := range s.kv.List(ctx, kv.Key{"person"}) {
		if err != nil {
			return nil, fmt.Errorf("voicedb: list people: %w", err)
		}
		var p Person
		if err := msgpack.Unmarshal(entry.Value, &p); err != nil {
			return nil, fmt.Errorf("voicedb: decode %s: %w", entry.Key, err)
		}
		people = append(people, &p)
	}
	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
	return people, nil
}

// Centroids returns the derived centroid for every person with at least
// one profile, keyed by person ID. Recomputed on every call.
func (s *Store) Centroids(ctx context.Context) (map[string][]float32, error) {
	people, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float32, len(people))
	for _, p := range people {
		if c := p.Centroid(); c != nil {
			out[p.ID] = c
		}
	}
	return out, nil
}

// Enroll attaches a voice embedding to the person the name resolves to,
// creating the person on first enrollment. The vector is normalized before
// storage; the name is added to the alias map. Returns the person after
// the append.
func (s *Store) Enroll(ctx context.Context, name string, vector []float32, source string) (*Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("voicedb: empty name")
	}
	if len(vector) == 0 {
		return nil, errors.New("voicedb: empty embedding")
	}

	p, err := s.Resolve(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		p = &Person{
			ID:      uuid.NewString(),
			Name:    name,
			Aliases: []string{name},
		}
	case err != nil:
		return nil, err
	}

	p.Profiles = append(p.Profiles, Profile{
		Vector:    Normalize(vector),
		Source:    source,
		CreatedAt: time.Now().UTC(),
	})
	if !hasAlias(p.Aliases, name) {
		p.Aliases = append(p.Aliases, name)
	}

	raw, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("voicedb: encode person: %w", err)
	}
	entries := []kv.Entry{
		{Key: personKey(p.ID), Value: raw},
		{Key: aliasKey(name), Value: []byte(p.ID)},
	}
	if err := s.kv.BatchSet(ctx, entries); err != nil {
		return nil, fmt.Errorf("voicedb: enroll %q: %w", name, err)
	}
	return p, nil
}

func hasAlias(aliases []string, name string) bool {
	folded := FoldName(name)
	for _, a := range aliases {
		if FoldName(a) == folded {
			return true
		}
	}
	return false
}
