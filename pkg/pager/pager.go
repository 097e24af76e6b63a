// Package pager implements the page cache and backing-store abstractions
// used by the B+-tree core: a fixed-size in-memory buffer of pages, a
// free/unpinned/pinned three-list eviction scheme, and a pluggable backend
// (on-disk, directio-aligned, or an anonymous in-memory image).
package pager

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"bptreekv/pkg/alloc"
	"bptreekv/pkg/config"
	"bptreekv/pkg/list"

	"github.com/ncw/directio"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"
)

// Pagesize is the size of an individual page frame, aligned to the
// platform's O_DIRECT block size.
const Pagesize int64 = directio.BlockSize

// checksumSize is the width of the trailing integrity checksum the pager
// reserves on every page. typeSize is one more reserved byte holding the
// page's PageType tag. Neither is ever visible to callers of Page.GetData.
const checksumSize int64 = 8
const typeSize int64 = 1
const trailerSize int64 = typeSize + checksumSize

// UsableSize is how many bytes of a page are available to the B+-tree core.
const UsableSize int64 = Pagesize - trailerSize

// ErrRanOutOfPages is returned when there are no free/unpinned pages to be used.
var ErrRanOutOfPages = errors.New("no available pages")

// ErrChecksumMismatch is returned when a page read from the backend fails
// its integrity checksum, i.e. an IO_ERROR per spec.md sec 7.
var ErrChecksumMismatch = errors.New("page checksum mismatch")

// backend is the storage a Pager persists pages to. diskBackend satisfies it
// with an *os.File (O_DIRECT); memBackend satisfies it with a growable
// in-memory buffer, backing spec.md's anonymous in-memory image.
type backend interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Close() error
}

type diskBackend struct {
	f *os.File
}

func (d *diskBackend) ReadAt(p []byte, off int64) (int, error)  { return d.f.ReadAt(p, off) }
func (d *diskBackend) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }
func (d *diskBackend) Close() error                             { return d.f.Close() }
func (d *diskBackend) Size() (int64, error) {
	info, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// memBackend is a growable in-memory backend, used when a Pager is opened
// with an empty file path (an anonymous, non-persistent database).
type memBackend struct {
	mu   sync.Mutex
	data []byte
}

func (m *memBackend) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBackend) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:end], p)
	return len(p), nil
}

func (m *memBackend) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}

func (m *memBackend) Close() error { return nil }

// Pager is a data structure that manages pages of data stored in a backend.
type Pager struct {
	backend   backend
	anonymous bool
	numPages  int64

	freeList     *list.List // Pre-allocated (but unused) page frames.
	unpinnedList *list.List // In-memory pages not currently pinned.
	pinnedList   *list.List // In-memory pages currently pinned.

	pageTable map[int64]*list.Link
	ptMtx     sync.Mutex

	allocator *alloc.Allocator

	// evictHook, when set, is called with a page frame's contents just
	// before that frame is repurposed for a different pagenum - giving the
	// B+-tree core a chance to force-uncouple any cursor still coupled to
	// it (spec.md sec 4.7/9).
	evictHook func(page *Page)
}

// New constructs a new Pager. An empty filePath backs the Pager with an
// anonymous in-memory image instead of a file on disk.
func New(filePath string) (pager *Pager, err error) {
	pager = &Pager{}
	pager.pageTable = make(map[int64]*list.Link)
	pager.freeList = list.NewList()
	pager.unpinnedList = list.NewList()
	pager.pinnedList = list.NewList()
	pager.allocator = alloc.New()

	frames := directio.AlignedBlock(int(Pagesize * config.MaxPagesInBuffer))
	for i := 0; i < config.MaxPagesInBuffer; i++ {
		frame := frames[i*int(Pagesize) : (i+1)*int(Pagesize)]
		page := Page{
			pager:   pager,
			pagenum: NoPage,
			dirty:   false,
			data:    frame,
		}
		pager.freeList.PushTail(&page)
	}

	if err = pager.Open(filePath); err != nil {
		return nil, err
	}
	return pager, nil
}

// SetEvictHook installs the callback invoked whenever an unpinned frame's
// content is about to be overwritten for a different page number.
func (pager *Pager) SetEvictHook(hook func(page *Page)) {
	pager.evictHook = hook
}

// GetFileName returns the file name/path used to open the pager's backing
// file, or "" for an anonymous in-memory pager.
func (pager *Pager) GetFileName() (filename string) {
	if pager.anonymous {
		return ""
	}
	return pager.fileHandle().Name()
}

func (pager *Pager) fileHandle() *os.File {
	if db, ok := pager.backend.(*diskBackend); ok {
		return db.f
	}
	return nil
}

// GetNumPages returns the number of pages.
func (pager *Pager) GetNumPages() (numPages int64) {
	return pager.numPages
}

// GetFreePN returns the allocator's high-water mark: one past the greatest
// page number handed out so far. A previously freed page number, if any, is
// handed out by AllocPage before this one.
func (pager *Pager) GetFreePN() (nextPN int64) {
	return pager.allocator.HighWaterMark()
}

// Open (re-)initializes the pager against a backing file at filePath, or an
// anonymous in-memory image if filePath is "".
func (pager *Pager) Open(filePath string) (err error) {
	if filePath == "" {
		pager.backend = &memBackend{}
		pager.anonymous = true
		pager.numPages = 0
		pager.allocator.Reserve(0)
		return nil
	}

	if idx := strings.LastIndex(filePath, "/"); idx != -1 {
		if err = os.MkdirAll(filePath[:idx], 0775); err != nil {
			return err
		}
	}
	file, err := directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return err
	}
	pager.backend = &diskBackend{f: file}
	pager.anonymous = false

	size, err := pager.backend.Size()
	if err != nil {
		return err
	}
	if size%Pagesize != 0 {
		return errors.New("DB file has been corrupted")
	}
	pager.numPages = size / Pagesize
	pager.allocator.Reserve(pager.numPages)
	return nil
}

// Close signals our pager to flush all dirty pages to the backend and
// release it.
func (pager *Pager) Close() error {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	if pager.pinnedList.PeekHead() != nil {
		return errors.New("pages are still pinned on close")
	}
	if err := pager.flushAllPagesLocked(context.Background()); err != nil {
		return err
	}
	return pager.backend.Close()
}

func checksum(data []byte) uint64 {
	return murmur3.Sum64(data)
}

// fillPageFromDisk populates a page's data from the backend and verifies
// its checksum.
func (pager *Pager) fillPageFromDisk(page *Page) error {
	if _, err := pager.backend.ReadAt(page.data, page.pagenum*Pagesize); err != nil && err != io.EOF {
		return err
	}
	got := binary.LittleEndian.Uint64(page.data[UsableSize+typeSize:])
	want := checksum(page.data[:UsableSize+typeSize])
	if got != want {
		return ErrChecksumMismatch
	}
	page.typ = PageType(page.data[UsableSize])
	return nil
}

// newPage returns a currently unused Page from the free or unpinned list,
// evicting one if necessary. The ptMtx should be locked on entry.
func (pager *Pager) newPage(pagenum int64) (newPage *Page, err error) {
	if freeLink := pager.freeList.PeekHead(); freeLink != nil {
		freeLink.PopSelf()
		newPage = freeLink.GetValue().(*Page)
	} else if unpinLink := pager.unpinnedList.PeekHead(); unpinLink != nil {
		unpinLink.PopSelf()
		newPage = unpinLink.GetValue().(*Page)
		if pager.evictHook != nil {
			pager.evictHook(newPage)
		}
		pager.flushPageLocked(newPage)
		delete(pager.pageTable, newPage.pagenum)
	} else {
		return nil, ErrRanOutOfPages
	}
	newPage.pagenum = pagenum
	newPage.dirty = false
	newPage.pinCount = 1
	newPage.cursors = nil
	return newPage, nil
}

// AllocPage returns a new page tagged with typ, reusing a freed pagenum
// when the allocator has one available.
func (pager *Pager) AllocPage(typ PageType) (page *Page, err error) {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()

	pagenum := pager.allocator.Alloc()

	if link, ok := pager.pageTable[pagenum]; ok {
		// The freed frame is still resident; reuse it in place.
		page = link.GetValue().(*Page)
		if link.GetList() != pager.pinnedList {
			link.PopSelf()
			pager.pageTable[pagenum] = pager.pinnedList.PushTail(page)
		}
		page.Pin()
	} else {
		page, err = pager.newPage(pagenum)
		if err != nil {
			return nil, err
		}
		pager.pageTable[pagenum] = pager.pinnedList.PushTail(page)
	}

	for i := range page.data {
		page.data[i] = 0
	}
	page.typ = typ
	page.dirty = true
	if pagenum >= pager.numPages {
		pager.numPages = pagenum + 1
	}
	return page, nil
}

// GetNewPage returns a new Page with the next available pagenum, tagged
// as a leaf by default (callers retag via Page.SetType as needed).
func (pager *Pager) GetNewPage() (page *Page, err error) {
	return pager.AllocPage(TypeLeaf)
}

// FreePage releases a page back to the allocator for reuse. The caller
// must have already unpinned it.
func (pager *Pager) FreePage(page *Page) {
	page.SetType(TypeFree)
	pager.allocator.Free(page.pagenum)
}

// GetPage returns an existing Page corresponding to the given pagenum.
func (pager *Pager) GetPage(pagenum int64) (page *Page, err error) {
	var newLink *list.Link
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	if pagenum < 0 || pagenum > pager.numPages-1 {
		return nil, errors.New("invalid pagenum")
	}
	if link, ok := pager.pageTable[pagenum]; ok {
		page = link.GetValue().(*Page)
		if link.GetList() == pager.unpinnedList {
			link.PopSelf()
			newLink = pager.pinnedList.PushTail(page)
			pager.pageTable[pagenum] = newLink
		}
		page.Pin()
		return page, nil
	}

	page, err = pager.newPage(pagenum)
	if err != nil {
		return nil, err
	}

	page.dirty = false
	if err = pager.fillPageFromDisk(page); err != nil {
		pager.freeList.PushTail(page)
		return nil, err
	}

	newLink = pager.pinnedList.PushTail(page)
	pager.pageTable[pagenum] = newLink
	return page, nil
}

// PutPage releases a reference to a page.
func (pager *Pager) PutPage(page *Page) (err error) {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	ret := page.Unpin()
	if ret == 0 {
		link := pager.pageTable[page.pagenum]
		link.PopSelf()
		newLink := pager.unpinnedList.PushTail(page)
		pager.pageTable[page.pagenum] = newLink
	}
	if ret < 0 {
		return errors.New("pinCount for page is < 0")
	}
	return nil
}

// FlushPage flushes a particular page's data to the backend if it is dirty,
// recomputing its integrity checksum first.
func (pager *Pager) FlushPage(page *Page) {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	pager.flushPageLocked(page)
}

func (pager *Pager) flushPageLocked(page *Page) {
	if !page.IsDirty() {
		return
	}
	page.data[UsableSize] = byte(page.typ)
	binary.LittleEndian.PutUint64(page.data[UsableSize+typeSize:], checksum(page.data[:UsableSize+typeSize]))
	pager.backend.WriteAt(page.data, page.pagenum*Pagesize)
	page.SetDirty(false)
}

// FlushAllPages flushes all dirty pages to the backend, concurrently.
func (pager *Pager) FlushAllPages() error {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	return pager.flushAllPagesLocked(context.Background())
}

func (pager *Pager) flushAllPagesLocked(ctx context.Context) error {
	var pages []*Page
	collect := func(link *list.Link) {
		pages = append(pages, link.GetValue().(*Page))
	}
	pager.pinnedList.Map(collect)
	pager.unpinnedList.Map(collect)

	group, _ := errgroup.WithContext(ctx)
	// Each page frame is only ever touched by one goroutine here, and
	// flushPageLocked itself does no further locking, so fanning the
	// writes out is safe even though the pager's own mutex is held for
	// the list walk above.
	for _, page := range pages {
		page := page
		group.Go(func() error {
			pager.flushPageLocked(page)
			return nil
		})
	}
	return group.Wait()
}
