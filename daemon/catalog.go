// File: daemon/catalog.go
package daemon

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/lguibr/harness/api"
	"github.com/pkg/errors"
)

// TestFunc is the body of a test class.
type TestFunc func(t *T)

// Catalog holds the test classes a daemon binary can run, by name. Names
// look like package paths: "sample/OnePassingTest".
type Catalog struct {
	mu      sync.RWMutex
	classes map[string]TestFunc
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{classes: make(map[string]TestFunc)}
}

// Add registers fn as className. Adding a name twice replaces the first.
func (c *Catalog) Add(className string, fn TestFunc) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes[className] = fn
	return c
}

// Lookup returns the test class called className.
func (c *Catalog) Lookup(className string) (TestFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.classes[className]
	return fn, ok
}

// Names returns every class name, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.classes))
	for name := range c.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CatalogFinder finds the classes of a catalog that are on the class path
// and match the include pattern.
type CatalogFinder struct {
	Catalog *Catalog
	// ClassPath lists the packages to search; a package includes its
	// subpackages. Empty means every package.
	ClassPath []string
	// Include is a path.Match pattern matched against the class name and
	// against its last element. Empty means every class.
	Include string
}

var _ api.TestClassFinder = CatalogFinder{}

// FindTestClasses reports every matching class, in name order.
func (f CatalogFinder) FindTestClasses(ctx context.Context, listener api.TestClassFinderListener) error {
	if f.Include != "" {
		if _, err := path.Match(f.Include, ""); err != nil {
			return errors.Wrapf(err, "invalid include pattern %q", f.Include)
		}
	}
	for _, name := range f.Catalog.Names() {
		if err := ctx.Err(); err != nil {
			return errors.WithMessage(err, "test class discovery")
		}
		if f.onClassPath(name) && f.included(name) {
			listener.OnTestClassFound(ctx, name)
		}
	}
	listener.OnAllTestClassesFound(ctx)
	return nil
}

func (f CatalogFinder) onClassPath(name string) bool {
	if len(f.ClassPath) == 0 {
		return true
	}
	for _, entry := range f.ClassPath {
		entry = strings.TrimSuffix(path.Clean(entry), "/")
		if entry == "." || strings.HasPrefix(name, entry+"/") {
			return true
		}
	}
	return false
}

func (f CatalogFinder) included(name string) bool {
	if f.Include == "" {
		return true
	}
	if ok, _ := path.Match(f.Include, name); ok {
		return true
	}
	ok, _ := path.Match(f.Include, path.Base(name))
	return ok
}
