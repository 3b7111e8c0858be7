package loader

import (
	"strings"
	"sync"

	"github.com/evanphx/malta/log"
	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// NameMax bounds program and process names.
const NameMax = 32

var (
	ErrUnknownImage   = errors.New("unknown program image")
	ErrDuplicateImage = errors.New("program image already registered")
	ErrBadImage       = errors.New("bad program image")
)

// Image is a program that can be started as a process. Entry is the
// address execution begins at.
type Image struct {
	Name        string `yaml:"name"`
	Entry       uint32 `yaml:"entry"`
	Description string `yaml:"description,omitempty"`
}

func (img Image) Validate() error {
	if img.Name == "" {
		return errors.Wrap(ErrBadImage, "empty name")
	}

	if len(img.Name) > NameMax {
		return errors.Wrapf(ErrBadImage, "name %q longer than %d bytes", img.Name, NameMax)
	}

	if strings.ContainsAny(img.Name, " \t\n") {
		return errors.Wrapf(ErrBadImage, "name %q contains whitespace", img.Name)
	}

	if img.Entry == 0 {
		return errors.Wrapf(ErrBadImage, "image %q has no entry point", img.Name)
	}

	return nil
}

// Defaults is the built-in program table.
func Defaults() []Image {
	return []Image{
		{Name: "init", Entry: 0x80001000, Description: "Initialize the system."},
		{Name: "inf", Entry: 0x80002000, Description: "Print from 1 to infinity."},
		{Name: "supervisor", Entry: 0x80003000, Description: "Restart children as they die."},
		{Name: "coquille", Entry: 0x80004000, Description: "Interactive shell."},
	}
}

// Registry resolves program names to images. Images are kept in a table
// searched linearly; resolved names are remembered in an ARC cache.
type Registry struct {
	L hclog.Logger

	mu     sync.RWMutex
	images []Image
	cache  *lru.ARCCache
}

func NewRegistry(l hclog.Logger, images ...Image) (*Registry, error) {
	cache, err := lru.NewARC(64)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		L:     log.Or(l),
		cache: cache,
	}

	for _, img := range images {
		if err := r.Register(img); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) Register(img Image) error {
	if err := img.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, x := range r.images {
		if x.Name == img.Name {
			return errors.Wrapf(ErrDuplicateImage, "image %q", img.Name)
		}
	}

	r.images = append(r.images, img)

	r.L.Trace("image-registered", "name", img.Name, "entry", img.Entry)

	return nil
}

func (r *Registry) Lookup(name string) (Image, bool) {
	if val, ok := r.cache.Get(name); ok {
		return val.(Image), true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, img := range r.images {
		if img.Name == name {
			r.L.Trace("image-cached", "name", name)
			r.cache.Add(name, img)
			return img, true
		}
	}

	return Image{}, false
}

// Resolve is Lookup returning ErrUnknownImage for missing names.
func (r *Registry) Resolve(name string) (Image, error) {
	img, ok := r.Lookup(name)
	if !ok {
		return Image{}, errors.Wrapf(ErrUnknownImage, "program %q", name)
	}

	return img, nil
}

// Images lists the registered images in registration order.
func (r *Registry) Images() []Image {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Image, len(r.images))
	copy(out, r.images)

	return out
}
