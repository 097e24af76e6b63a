// Package blob implements the out-of-node record store: records whose
// length exceeds a leaf slot's pointer width (spec.md sec 4.9) are written
// here as a page chain, and the slot's pointer word holds the chain's BlobID.
package blob

import (
	"encoding/binary"
	"errors"

	"bptreekv/pkg/pager"
)

// BlobID identifies a blob's page chain by its first page number.
type BlobID int64

// NoBlob is the sentinel meaning "no blob", never a valid BlobID.
const NoBlob BlobID = -1

// headerSize is the per-page chain header: 8 bytes total length (only
// meaningful on the first page) + 8 bytes next-page pointer.
const headerSize = 16

// ErrNotFound is returned by Read/Free on an unknown BlobID. Overwrite
// ignores it from Free and allocates a fresh chain.
var ErrNotFound = errors.New("blob not found")

// Store is the blob subsystem, backed by the same pager the B+-tree uses.
type Store struct {
	pager *pager.Pager
}

// New returns a Store backed by p.
func New(p *pager.Pager) *Store {
	return &Store{pager: p}
}

func chunkSize() int {
	return int(pager.UsableSize) - headerSize
}

// Allocate writes data as a new page chain and returns its BlobID.
func (s *Store) Allocate(data []byte) (BlobID, error) {
	if len(data) == 0 {
		return NoBlob, nil
	}
	first := BlobID(NoBlob)
	var prev *pager.Page
	remaining := data
	total := int64(len(data))

	for offset := 0; offset == 0 || len(remaining) > 0; {
		page, err := s.pager.AllocPage(pager.TypeBlob)
		if err != nil {
			return NoBlob, err
		}
		if first == NoBlob {
			first = BlobID(page.GetPageNum())
		}
		n := len(remaining)
		if n > chunkSize() {
			n = chunkSize()
		}
		buf := page.GetData()
		binary.LittleEndian.PutUint64(buf[0:8], uint64(total))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(NoBlob))
		copy(buf[headerSize:], remaining[:n])
		remaining = remaining[n:]
		offset += n

		if prev != nil {
			pbuf := prev.GetData()
			binary.LittleEndian.PutUint64(pbuf[8:16], uint64(page.GetPageNum()))
			s.pager.PutPage(prev)
		}
		prev = page
		if len(remaining) == 0 {
			s.pager.PutPage(prev)
			break
		}
	}
	return first, nil
}

// Read reconstructs the full record bytes for id.
func (s *Store) Read(id BlobID) ([]byte, error) {
	if id == NoBlob {
		return nil, nil
	}
	page, err := s.pager.GetPage(int64(id))
	if err != nil {
		return nil, ErrNotFound
	}
	buf := page.GetData()
	total := int64(binary.LittleEndian.Uint64(buf[0:8]))
	out := make([]byte, 0, total)

	next := int64(binary.LittleEndian.Uint64(buf[8:16]))
	take := buf[headerSize:]
	if int64(len(take)) > total {
		take = take[:total]
	}
	out = append(out, take...)
	s.pager.PutPage(page)

	for int64(len(out)) < total {
		page, err = s.pager.GetPage(next)
		if err != nil {
			return nil, ErrNotFound
		}
		buf = page.GetData()
		next = int64(binary.LittleEndian.Uint64(buf[8:16]))
		remaining := total - int64(len(out))
		take = buf[headerSize:]
		if int64(len(take)) > remaining {
			take = take[:remaining]
		}
		out = append(out, take...)
		s.pager.PutPage(page)
	}
	return out, nil
}

// Free releases every page in id's chain back to the allocator.
func (s *Store) Free(id BlobID) error {
	if id == NoBlob {
		return nil
	}
	pagenum := int64(id)
	for pagenum != int64(NoBlob) {
		page, err := s.pager.GetPage(pagenum)
		if err != nil {
			return ErrNotFound
		}
		next := int64(binary.LittleEndian.Uint64(page.GetData()[8:16]))
		s.pager.PutPage(page)
		s.pager.FreePage(page)
		pagenum = next
	}
	return nil
}

// Overwrite replaces the record stored at id with data, returning the
// (possibly different) BlobID the caller's slot must now point at - per
// spec.md sec 6, overwrite may relocate a blob.
func (s *Store) Overwrite(id BlobID, data []byte) (BlobID, error) {
	if err := s.Free(id); err != nil && err != ErrNotFound {
		return NoBlob, err
	}
	return s.Allocate(data)
}
