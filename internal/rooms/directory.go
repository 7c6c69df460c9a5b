// Package rooms owns the room directory: room records keyed by name, the
// join codes clients use to enter them and the set of connections present in
// each room.
package rooms

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const maxNameLength = 64

// Record is a room as known by the directory. Members holds connection ids in
// join order.
type Record struct {
	Name      string
	Code      string
	CreatorID string
	Members   []string
	CreatedAt time.Time
}

func (r *Record) clone() Record {
	c := *r
	c.Members = slices.Clone(r.Members)
	return c
}

// Observer is told about every room created through CreateRoom.
// Implementations must not block the caller.
type Observer interface {
	RoomCreated(record Record)
}

// Directory maps room names to records and join codes to room names.
// Names and codes are matched exactly.
type Directory struct {
	mu        sync.RWMutex
	byName    map[string]*Record
	byCode    map[string]string
	order     []string
	generate  CodeGenerator
	observers []Observer
	log       *slog.Logger
}

// NewDirectory creates a directory pre-seeded with the predefined rooms. A
// predefined room uses its own name as join code.
func NewDirectory(log *slog.Logger, generate CodeGenerator, predefined ...string) (*Directory, error) {
	d := &Directory{
		byName:   make(map[string]*Record),
		byCode:   make(map[string]string),
		generate: generate,
		log:      log,
	}
	for _, name := range predefined {
		if err := d.Import(Record{Name: name, Code: name, CreatedAt: time.Now()}); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// CreateRoom registers a new room and returns its generated join code.
func (d *Directory) CreateRoom(name, creatorID string) (string, error) {
	if !validName(name) {
		return "", ErrInvalidRoomName
	}

	d.mu.Lock()
	if _, ok := d.byName[name]; ok {
		d.mu.Unlock()
		return "", ErrRoomAlreadyExists
	}
	code, err := d.freeCodeLocked()
	if err != nil {
		d.mu.Unlock()
		return "", err
	}
	record := &Record{
		Name:      name,
		Code:      code,
		CreatorID: creatorID,
		CreatedAt: time.Now().UTC(),
	}
	d.insertLocked(record)
	snapshot := record.clone()
	d.mu.Unlock()

	d.log.Info("Room created", "room", name, "code", code, "creator", creatorID)
	for _, o := range d.snapshotObservers() {
		o.RoomCreated(snapshot)
	}
	return code, nil
}

// Observe registers o for future room creations.
func (d *Directory) Observe(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

func (d *Directory) snapshotObservers() []Observer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.observers)
}

func (d *Directory) freeCodeLocked() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := d.generate()
		if err != nil {
			return "", err
		}
		if _, taken := d.byCode[code]; !taken {
			return code, nil
		}
		d.log.Debug("Join code collision, retrying", "attempt", attempt+1)
	}
	return "", ErrCodeSpaceExhausted
}

func (d *Directory) insertLocked(record *Record) {
	d.byName[record.Name] = record
	d.byCode[record.Code] = record.Name
	d.order = append(d.order, record.Name)
}

// Import inserts a record learned from storage or from another instance.
// Importing an identical name/code pair twice is a no-op.
func (d *Directory) Import(record Record) error {
	if !validName(record.Name) || record.Code == "" {
		return ErrInvalidRoomName
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byName[record.Name]; ok {
		if existing.Code == record.Code {
			return nil
		}
		return ErrRoomAlreadyExists
	}
	if _, taken := d.byCode[record.Code]; taken {
		return ErrCodeTaken
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Members = nil
	d.insertLocked(&record)
	return nil
}

// ResolveByCode returns the name of the room owning code.
func (d *Directory) ResolveByCode(code string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	name, ok := d.byCode[code]
	if !ok {
		return "", ErrRoomNotFound
	}
	return name, nil
}

func (d *Directory) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byName[name]
	return ok
}

// Get returns a copy of the record for name.
func (d *Directory) Get(name string) (Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	record, ok := d.byName[name]
	if !ok {
		return Record{}, ErrRoomNotFound
	}
	return record.clone(), nil
}

// Names lists every known room, predefined rooms first, then in creation order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.order)
}

// AddMember records connID as present in the room. Adding an existing member
// keeps its original position.
func (d *Directory) AddMember(name, connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.byName[name]
	if !ok {
		return ErrRoomNotFound
	}
	if !slices.Contains(record.Members, connID) {
		record.Members = append(record.Members, connID)
	}
	return nil
}

func (d *Directory) RemoveMember(name, connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.byName[name]
	if !ok {
		return ErrRoomNotFound
	}
	record.Members = slices.DeleteFunc(record.Members, func(id string) bool {
		return id == connID
	})
	return nil
}

func validName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && len(name) <= maxNameLength
}
