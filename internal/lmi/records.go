package lmi

import (
	"encoding/json"
	"time"

	"github.com/localidx/fsindex/internal/coretypes"
)

// metaRecord is the Meta tier's value shape (spec.md §3): the cheapest
// possible projection, written first during the progressive scan.
type metaRecord struct {
	Name        string            `json:"name"`
	IsDirectory bool              `json:"is_directory"`
	Exists      bool              `json:"exists"`
	Priority    coretypes.Priority `json:"priority"`
	LastAccess  time.Time         `json:"last_access"`
}

// contentRecord is the Content tier's value shape.
type contentRecord struct {
	Name        string            `json:"name"`
	IsDirectory bool              `json:"is_directory"`
	Size        int64             `json:"size"`
	ModTime     time.Time         `json:"mtime"`
	CTime       time.Time         `json:"ctime"`
	Extension   string            `json:"extension"`
	MIME        string            `json:"mime"`
	Priority    coretypes.Priority `json:"priority"`
}

// dirChild is one field's value inside a dir:<parent> hash.
type dirChild struct {
	Name        string            `json:"name"`
	IsDirectory bool              `json:"is_directory"`
	Size        int64             `json:"size"`
	ModTime     time.Time         `json:"mtime"`
	CTime       time.Time         `json:"ctime"`
	Parent      string            `json:"parent"`
	Full        string            `json:"full"`
	Priority    coretypes.Priority `json:"priority"`
}

func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Every value here is a plain struct of primitives; marshalling
		// cannot fail short of a programming error.
		panic(err)
	}
	return b
}

func (m metaRecord) toEntry(parent, full string) coretypes.Entry {
	return coretypes.Entry{
		Name:        m.Name,
		IsDirectory: m.IsDirectory,
		Priority:    m.Priority,
		Parent:      parent,
		Full:        full,
		LastAccess:  m.LastAccess,
		Exists:      m.Exists,
	}
}

func (c contentRecord) toEntry(parent, full string) coretypes.Entry {
	return coretypes.Entry{
		Name:        c.Name,
		IsDirectory: c.IsDirectory,
		Size:        c.Size,
		ModTime:     c.ModTime,
		CTime:       c.CTime,
		Extension:   c.Extension,
		MIME:        c.MIME,
		Priority:    c.Priority,
		Parent:      parent,
		Full:        full,
	}
}

func (d dirChild) toEntry() coretypes.Entry {
	return coretypes.Entry{
		Name:        d.Name,
		IsDirectory: d.IsDirectory,
		Size:        d.Size,
		ModTime:     d.ModTime,
		CTime:       d.CTime,
		Parent:      d.Parent,
		Full:        d.Full,
		Priority:    d.Priority,
	}
}

func keyMeta(path string) string    { return "meta:" + path }
func keyContent(path string) string { return "content:" + path }
func keyDir(parent string) string   { return "dir:" + parent }
