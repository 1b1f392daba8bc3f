package world

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stonehollow/craftd/pkg/protocol"
)

const (
	regionChunks = 32 * 32
	sectorSize   = 4096
	headerSize   = 2 * sectorSize // location table + timestamp table
)

// regionFile is one open r.<rx>.<rz>.mca file with its in-memory header.
// Locations pack (sector_offset:24 | sector_count:8); zero means the chunk
// is not stored.
type regionFile struct {
	f          *os.File
	locations  [regionChunks]uint32
	timestamps [regionChunks]uint32
}

// RegionManager persists chunks into 32x32-chunk region files under
// <world>/region.
type RegionManager struct {
	dir string

	mu    sync.Mutex
	files map[ChunkPos]*regionFile
}

// NewRegionManager creates the region directory and returns a manager.
func NewRegionManager(worldDir string) (*RegionManager, error) {
	dir := filepath.Join(worldDir, "region")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create region directory: %w", err)
	}
	return &RegionManager{dir: dir, files: make(map[ChunkPos]*regionFile)}, nil
}

func regionCoords(pos ChunkPos) ChunkPos {
	return ChunkPos{X: pos.X >> 5, Z: pos.Z >> 5}
}

func chunkIndex(pos ChunkPos) int {
	return int((pos.Z&31)<<5 | (pos.X & 31))
}

// open returns the region file holding pos, creating it with an empty header
// on first use. Called with mu held.
func (m *RegionManager) open(region ChunkPos) (*regionFile, error) {
	if rf, ok := m.files[region]; ok {
		return rf, nil
	}

	path := filepath.Join(m.dir, fmt.Sprintf("r.%d.%d.mca", region.X, region.Z))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open region file: %w", err)
	}

	rf := &regionFile{f: f}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if st.Size() < headerSize {
		// Fresh file: write an all-zero header so payloads start 4 KiB
		// aligned at sector 2.
		if err := rf.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := rf.readHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}

	m.files[region] = rf
	return rf, nil
}

func (rf *regionFile) readHeader() error {
	header := make([]byte, headerSize)
	if _, err := rf.f.ReadAt(header, 0); err != nil {
		return fmt.Errorf("read region header: %w", err)
	}
	for i := 0; i < regionChunks; i++ {
		rf.locations[i] = binary.BigEndian.Uint32(header[i*4:])
		rf.timestamps[i] = binary.BigEndian.Uint32(header[sectorSize+i*4:])
	}
	return nil
}

func (rf *regionFile) writeHeader() error {
	header := make([]byte, headerSize)
	for i := 0; i < regionChunks; i++ {
		binary.BigEndian.PutUint32(header[i*4:], rf.locations[i])
		binary.BigEndian.PutUint32(header[sectorSize+i*4:], rf.timestamps[i])
	}
	if _, err := rf.f.WriteAt(header, 0); err != nil {
		return fmt.Errorf("write region header: %w", err)
	}
	return nil
}

// Save persists a dirty chunk and clears its dirty flag on success. Clean
// chunks are a no-op.
func (m *RegionManager) Save(c *Chunk) error {
	if !c.Dirty() {
		return nil
	}

	payload := encodeChunk(c)

	m.mu.Lock()
	defer m.mu.Unlock()

	rf, err := m.open(regionCoords(c.Pos()))
	if err != nil {
		return err
	}

	end, err := rf.f.Seek(0, 2)
	if err != nil {
		return err
	}
	sectorOffset := uint32(end / sectorSize)
	sectorCount := uint32((len(payload) + sectorSize - 1) / sectorSize)

	padded := make([]byte, int(sectorCount)*sectorSize)
	copy(padded, payload)
	if _, err := rf.f.WriteAt(padded, end); err != nil {
		return fmt.Errorf("write chunk payload: %w", err)
	}

	idx := chunkIndex(c.Pos())
	rf.locations[idx] = sectorOffset<<8 | sectorCount&0xFF
	rf.timestamps[idx] = uint32(time.Now().Unix())
	if err := rf.writeHeader(); err != nil {
		return err
	}
	if err := rf.f.Sync(); err != nil {
		return err
	}

	c.SetDirty(false)
	return nil
}

// Load reads a stored chunk. It returns (nil, nil) when the coordinate has
// never been persisted.
func (m *RegionManager) Load(pos ChunkPos) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	region := regionCoords(pos)
	path := filepath.Join(m.dir, fmt.Sprintf("r.%d.%d.mca", region.X, region.Z))
	if _, ok := m.files[region]; !ok {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, nil
		}
	}

	rf, err := m.open(region)
	if err != nil {
		return nil, err
	}

	location := rf.locations[chunkIndex(pos)]
	if location == 0 {
		return nil, nil
	}
	sectorOffset := location >> 8 & 0xFFFFFF
	sectorCount := location & 0xFF
	if sectorOffset == 0 || sectorCount == 0 {
		return nil, nil
	}

	data := make([]byte, int(sectorCount)*sectorSize)
	if _, err := rf.f.ReadAt(data, int64(sectorOffset)*sectorSize); err != nil {
		return nil, fmt.Errorf("read chunk payload: %w", err)
	}

	c, err := decodeChunk(pos, data)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %d,%d: %w", pos.X, pos.Z, err)
	}
	return c, nil
}

// Has reports whether pos is stored on disk.
func (m *RegionManager) Has(pos ChunkPos) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	region := regionCoords(pos)
	if _, ok := m.files[region]; !ok {
		path := filepath.Join(m.dir, fmt.Sprintf("r.%d.%d.mca", region.X, region.Z))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return false
		}
	}
	rf, err := m.open(region)
	if err != nil {
		return false
	}
	return rf.locations[chunkIndex(pos)] != 0
}

// Close flushes and closes every open region file.
func (m *RegionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, rf := range m.files {
		if err := rf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.files = make(map[ChunkPos]*regionFile)
	return firstErr
}

// encodeChunk serializes a chunk into the persistence layout: section count,
// then per section a presence byte, block count, the raw block grid and both
// light arrays.
func encodeChunk(c *Chunk) []byte {
	buf := protocol.NewBuffer(64 * 1024)

	c.withSections(func(sections *[SectionsPerChunk]*Section) {
		buf.WriteInt32(SectionsPerChunk)
		for _, s := range sections {
			if s == nil {
				buf.WriteUint8(0)
				continue
			}
			buf.WriteUint8(1)
			buf.WriteInt16(s.BlockCount())
			for i := int32(0); i < BlocksPerSection; i++ {
				y := (i / 256) % 16
				z := (i / 16) % 16
				x := i % 16
				buf.WriteUint16(uint16(s.Block(x, y, z)))
			}
			buf.WriteBytes(s.BlockLight[:])
			buf.WriteBytes(s.SkyLight[:])
		}
	})

	return buf.Bytes()
}

func decodeChunk(pos ChunkPos, data []byte) (*Chunk, error) {
	buf := protocol.BufferFrom(data)
	c := NewChunk(pos)

	sectionCount, err := buf.ReadInt32()
	if err != nil {
		return nil, err
	}

	c.withSections(func(sections *[SectionsPerChunk]*Section) {
		for i := int32(0); i < sectionCount && err == nil; i++ {
			var present uint8
			if present, err = buf.ReadUint8(); err != nil || present == 0 {
				continue
			}
			if _, err = buf.ReadInt16(); err != nil {
				return
			}

			s := NewSection()
			for j := int32(0); j < BlocksPerSection; j++ {
				var id uint16
				if id, err = buf.ReadUint16(); err != nil {
					return
				}
				y := (j / 256) % 16
				z := (j / 16) % 16
				x := j % 16
				s.SetBlock(x, y, z, BlockID(id))
			}

			var light []byte
			if light, err = buf.ReadBytes(LightBytes); err != nil {
				return
			}
			copy(s.BlockLight[:], light)
			if light, err = buf.ReadBytes(LightBytes); err != nil {
				return
			}
			copy(s.SkyLight[:], light)

			if i < SectionsPerChunk {
				sections[i] = s
			}
		}
	})
	if err != nil {
		return nil, err
	}

	c.SetLoaded(true)
	c.SetDirty(false)
	return c, nil
}
