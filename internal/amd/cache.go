package amd

import (
	"os"

	"golang.org/x/sys/unix"
)

// LED state for AMD SGPIO banks persists across process runs in a small
// shared-memory file. Each 4-drive bank owns one entry; the file is locked
// exclusively while mapped so concurrent invocations serialize.

const (
	cachePath = "/dev/shm/ledgod_amd_sgpio_cache"
	cacheSize = 1024
	entrySize = 16
)

// DriveLeds is the cached LED triple of one drive.
type DriveLeds struct {
	Error    uint8
	Locate   uint8
	Activity uint8
}

// CacheEntry mirrors one bank: four drive triples plus the blink generator
// rates currently programmed into the bank's config register.
type CacheEntry struct {
	Leds      [4]DriveLeds
	BlinkGenA uint8
	BlinkGenB uint8
}

type bankCache struct {
	f    *os.File
	data []byte
}

func openCache() (*bankCache, error) {
	f, err := os.OpenFile(cachePath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		if err := f.Truncate(cacheSize); err != nil {
			f.Close()
			return nil, err
		}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, cacheSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &bankCache{f: f, data: data}, nil
}

func (c *bankCache) close() {
	unix.Munmap(c.data)
	unix.Flock(int(c.f.Fd()), unix.LOCK_UN)
	c.f.Sync()
	c.f.Close()
}

func (c *bankCache) entry(index int) CacheEntry {
	var e CacheEntry
	off := index * entrySize
	if off+entrySize > len(c.data) {
		return e
	}
	for i := 0; i < 4; i++ {
		e.Leds[i] = DriveLeds{
			Error:    c.data[off+i*3],
			Locate:   c.data[off+i*3+1],
			Activity: c.data[off+i*3+2],
		}
	}
	e.BlinkGenA = c.data[off+12]
	e.BlinkGenB = c.data[off+13]
	return e
}

func (c *bankCache) setEntry(index int, e CacheEntry) {
	off := index * entrySize
	if off+entrySize > len(c.data) {
		return
	}
	for i := 0; i < 4; i++ {
		c.data[off+i*3] = e.Leds[i].Error
		c.data[off+i*3+1] = e.Leds[i].Locate
		c.data[off+i*3+2] = e.Leds[i].Activity
	}
	c.data[off+12] = e.BlinkGenA
	c.data[off+13] = e.BlinkGenB
}
