package usbid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the usual locations of usb.ids.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database maps USB identifiers to names.
type Database struct {
	mu       sync.RWMutex
	vendors  map[uint16]string
	products map[uint32]string // VID<<16 | PID
	classes  map[uint8]string
}

// New returns an empty database.
func New() *Database {
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		classes:  make(map[uint8]string),
	}
}

// Open parses the first of paths that can be opened.
func Open(paths ...string) (*Database, error) {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()
		db := New()
		if err := db.Parse(f); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("usb.ids: %w", os.ErrNotExist)
}

type section uint8

const (
	sectionNone section = iota
	sectionVendor
	sectionClass
)

// entry splits "<hex id>  <name>".
func entry(line string, bits int) (uint64, string, bool) {
	id, name, ok := strings.Cut(line, "  ")
	if !ok || len(id) != bits/4 {
		return 0, "", false
	}
	v, err := strconv.ParseUint(id, 16, bits)
	if err != nil {
		return 0, "", false
	}
	return v, strings.TrimSpace(name), true
}

// Parse adds the entries read from r. Vendors with their products and
// device classes are kept; the other sections are skipped.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	sc := bufio.NewScanner(r)
	sec := sectionNone
	var vid uint16
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] == '\t' {
			// Two tabs are interfaces (or protocols); one tab is a product
			// of the current vendor.
			if sec != sectionVendor || strings.HasPrefix(line, "\t\t") {
				continue
			}
			if pid, name, ok := entry(line[1:], 16); ok {
				db.products[uint32(vid)<<16|uint32(pid)] = name
			}
			continue
		}

		sec = sectionNone
		if rest, ok := strings.CutPrefix(line, "C "); ok {
			if code, name, ok := entry(rest, 8); ok {
				db.classes[uint8(code)] = name
				sec = sectionClass
			}
			continue
		}
		if v, name, ok := entry(line, 16); ok {
			vid = uint16(v)
			db.vendors[vid] = name
			sec = sectionVendor
		}
	}
	return sc.Err()
}

// Vendor returns the name of vid.
func (db *Database) Vendor(vid uint16) string {
	if db == nil {
		return ""
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the name of pid under vid.
func (db *Database) Product(vid, pid uint16) string {
	if db == nil {
		return ""
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Class returns the name of a device or interface class code.
func (db *Database) Class(code uint8) string {
	if db == nil {
		return ""
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.classes[code]
}

// Len returns the number of vendors and products.
func (db *Database) Len() (vendors, products int) {
	if db == nil {
		return 0, 0
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors), len(db.products)
}
