// Package usermem is the only path by which the kernel touches user memory.
//
// An AddressSpace is a page table from user page numbers to frames. Every
// access is checked against the page table before the byte is touched, and
// the touch itself runs under a fault guard, so a bad user pointer becomes a
// false return instead of a kernel crash.
package usermem

import (
	"errors"
	"fmt"
	"sync"

	"github.com/containerd/errdefs"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/abi"
)

var (
	// ErrKernelAddress indicates an attempt to map at or above PhysBase.
	ErrKernelAddress = errors.New("address is not a user address")

	// ErrDestroyed indicates use of an address space after Destroy.
	ErrDestroyed = errors.New("address space destroyed")
)

type pte struct {
	frame    *frame
	writable bool
}

// AddressSpace is one process's user page table.
type AddressSpace struct {
	mu        sync.Mutex
	pages     map[uint32]*pte
	destroyed bool
}

// New returns an empty address space.
func New() *AddressSpace {
	return &AddressSpace{pages: make(map[uint32]*pte)}
}

// IsUser reports whether va lies below the kernel/user split.
func IsUser(va uint32) bool {
	return va < abi.PhysBase
}

// PageOf returns the page-aligned base of va.
func PageOf(va uint32) uint32 {
	return va &^ (abi.PageSize - 1)
}

func pageNumber(va uint32) uint32 {
	return va / abi.PageSize
}

// Map installs a fresh zero-filled page containing va.
func (as *AddressSpace) Map(va uint32, writable bool) error {
	if !IsUser(va) {
		return fmt.Errorf("map %#x: %w", va, ErrKernelAddress)
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.destroyed {
		return ErrDestroyed
	}
	vpn := pageNumber(va)
	if _, ok := as.pages[vpn]; ok {
		return fmt.Errorf("map %#x: %w", PageOf(va), errdefs.ErrAlreadyExists)
	}
	f, err := newFrame()
	if err != nil {
		return err
	}
	as.pages[vpn] = &pte{frame: f, writable: writable}
	return nil
}

// MapRange maps every page overlapping [va, va+n).
func (as *AddressSpace) MapRange(va uint32, n int, writable bool) error {
	end := uint64(va) + uint64(n)
	for page := uint64(PageOf(va)); page < end; page += abi.PageSize {
		if err := as.Map(uint32(page), writable); err != nil {
			return err
		}
	}
	return nil
}

// Unmap removes the page containing va and releases its frame.
func (as *AddressSpace) Unmap(va uint32) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	vpn := pageNumber(va)
	p, ok := as.pages[vpn]
	if !ok {
		return fmt.Errorf("unmap %#x: %w", PageOf(va), errdefs.ErrNotFound)
	}
	delete(as.pages, vpn)
	return p.frame.release()
}

// Revoke invalidates the frame behind va while leaving the page-table entry
// in place. The address still passes the page-table check; touching it
// faults.
func (as *AddressSpace) Revoke(va uint32) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	p, ok := as.pages[pageNumber(va)]
	if !ok {
		return fmt.Errorf("revoke %#x: %w", PageOf(va), errdefs.ErrNotFound)
	}
	return p.frame.revoke()
}

// Protect changes whether the page containing va is writable from user
// mode.
func (as *AddressSpace) Protect(va uint32, writable bool) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	p, ok := as.pages[pageNumber(va)]
	if !ok {
		return fmt.Errorf("protect %#x: %w", PageOf(va), errdefs.ErrNotFound)
	}
	p.writable = writable
	return nil
}

// Mapped reports whether va is a user address with a page-table entry.
func (as *AddressSpace) Mapped(va uint32) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.lookup(va, false) != nil
}

// Pages returns the number of mapped pages.
func (as *AddressSpace) Pages() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return len(as.pages)
}

// Destroy releases every frame. Later accesses fail; later maps error.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for vpn, p := range as.pages {
		_ = p.frame.release()
		delete(as.pages, vpn)
	}
	as.destroyed = true
}

// lookup is the page-table half of every access: va must be a user address,
// mapped, and writable when write is set. Caller must hold as.mu.
func (as *AddressSpace) lookup(va uint32, write bool) *pte {
	if !IsUser(va) {
		return nil
	}
	p, ok := as.pages[pageNumber(va)]
	if !ok || (write && !p.writable) {
		return nil
	}
	return p
}
