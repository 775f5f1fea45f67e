// Package vecbuf implements a fixed-width int64 column vector backed by
// a memory-mapped file. Every lifecycle operation reports to a
// vstate.Machine, so protocol misuse (writes out of order, reads past
// the seal, growth mid-write) is flagged the moment it happens.
package vecbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/edsrzf/mmap-go"

	"github.com/augerdb/augerdb/pkg/batchdef"
	"github.com/augerdb/augerdb/pkg/vstate"
)

const (
	FlagAllocated uint32 = 1 << iota
	FlagSealed    uint32 = 1 << 1
)

const (
	vectorHeaderSize = 64
	// just a string of "AVEC"
	// 'A' = 0x41 and so on. Auger VECtor.
	vectorMagicNumber   = 0x41564543
	vectorHeaderVersion = 1

	// every value is one little-endian int64
	valueSize = 8
	// default capacity of 16K values (128KB of data).
	defaultCapacity = 16 * 1024
	fileModePerm    = 0644
)

var (
	ErrClosed      = errors.New("the vector file is closed")
	ErrOutOfRange  = errors.New("index out of range for vector capacity")
	ErrNotSealed   = errors.New("vector is not sealed")
	ErrCapacity    = errors.New("vector capacity too small")
	ErrBadDef      = errors.New("definition does not describe an int64 vector")
	ErrShortBuffer = errors.New("value buffer shorter than definition value count")
)

// VectorHeader encodes all the necessary information about the vector file at the top of the file.
// Its Size is 64 byte once encoded.
type VectorHeader struct {
	// at 0
	Magic uint32
	// at 4
	Version uint32
	// at 8
	CreatedAt int64
	// at 16
	LastModifiedAt int64
	// at 24
	Capacity int64
	// at 32
	ValueCount int64
	// at 40
	Flags uint32

	// at 44–55
	// - Reserved for future use
	_ [12]byte
	// at 56 byte: - CRC32 of first 56 bytes
	CRC uint32
	// at 60 - padding to align to 64B
	_ uint32
}

func decodeVectorHeader(buf []byte) (*VectorHeader, error) {
	if len(buf) < vectorHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	crc := binary.LittleEndian.Uint32(buf[56:60])
	computed := crc32.ChecksumIEEE(buf[0:56])
	if crc != computed {
		return nil, fmt.Errorf("vector metadata CRC mismatch: expected %08x, got %08x", crc, computed)
	}

	meta := &VectorHeader{
		Magic:          binary.LittleEndian.Uint32(buf[0:4]),
		Version:        binary.LittleEndian.Uint32(buf[4:8]),
		CreatedAt:      int64(binary.LittleEndian.Uint64(buf[8:16])),
		LastModifiedAt: int64(binary.LittleEndian.Uint64(buf[16:24])),
		Capacity:       int64(binary.LittleEndian.Uint64(buf[24:32])),
		ValueCount:     int64(binary.LittleEndian.Uint64(buf[32:40])),
		Flags:          binary.LittleEndian.Uint32(buf[40:44]),
	}
	return meta, nil
}

type MsyncOption int

const (
	// MsyncNone skips msync entirely; Sync and Close still flush.
	MsyncNone MsyncOption = iota

	// MsyncOnSeal calls msync (Flush) after every SetValueCount.
	MsyncOnSeal
)

// IsSealed returns if the provided flag has the sealed bit set.
func IsSealed(flags uint32) bool {
	return flags&FlagSealed != 0
}

func IsAllocated(flags uint32) bool {
	return flags&FlagAllocated != 0
}

// Vector is a single int64 column backed by a memory-mapped file.
//
// A vector has one owner at a time, same as its machine; the internal
// mutex only guards the mapping itself across resizes, it does not make
// the lifecycle operations concurrent.
type Vector struct {
	path     string
	name     string
	fd       *os.File
	mmapData mmap.MMap
	capacity int64
	closed   atomic.Bool

	machine *vstate.Machine
	builder *batchdef.Builder
	logger  *slog.Logger

	mu         sync.RWMutex
	syncOption MsyncOption
}

// WithSyncOption sets the sync option for the Vector.
func WithSyncOption(opt MsyncOption) func(*Vector) {
	return func(v *Vector) {
		v.syncOption = opt
	}
}

// WithCapacity sets the value capacity used when the file is created.
func WithCapacity(n int) func(*Vector) {
	return func(v *Vector) {
		v.capacity = int64(n)
	}
}

// WithMachine attaches the lifecycle verifier. Defaults to a fresh
// vstate.NewMachine().
func WithMachine(m *vstate.Machine) func(*Vector) {
	return func(v *Vector) {
		v.machine = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) func(*Vector) {
	return func(v *Vector) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// OpenVectorFile opens an existing vector file or creates a new one if
// not present. A sealed file reopens read-only in protocol terms: its
// machine starts out loaded with the persisted value count. An unsealed
// existing file reopens empty, its previous contents are not trusted.
func OpenVectorFile(dirPath, name string, opts ...func(*Vector)) (*Vector, error) {
	path := VectorFileName(dirPath, name)
	isNew, err := isNewVector(path)
	if err != nil {
		return nil, err
	}

	v := &Vector{
		path:       path,
		name:       name,
		capacity:   defaultCapacity,
		syncOption: MsyncNone,
		builder:    batchdef.NewBuilder(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "vecbuf")
	if v.machine == nil {
		v.machine = vstate.NewMachine()
	}

	fd, mmapData, err := v.prepareVectorFile(path, isNew)
	if err != nil {
		return nil, err
	}
	v.fd = fd
	v.mmapData = mmapData

	if isNew {
		// for a new vector file we initialize it with default metadata.
		writeInitialMetadata(mmapData, v.capacity)
		return v, nil
	}

	meta, err := decodeVectorHeader(mmapData[:vectorHeaderSize])
	if err != nil {
		_ = mmapData.Unmap()
		_ = fd.Close()
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if meta.Magic != vectorMagicNumber {
		_ = mmapData.Unmap()
		_ = fd.Close()
		return nil, fmt.Errorf("not a vector file: bad magic %08x in %s", meta.Magic, path)
	}
	if int64(len(mmapData)) < fileSize(meta.Capacity) {
		_ = mmapData.Unmap()
		_ = fd.Close()
		return nil, fmt.Errorf("vector file truncated: %d bytes for capacity %d", len(mmapData), meta.Capacity)
	}
	v.capacity = meta.Capacity

	if IsSealed(meta.Flags) {
		// the persisted seal survives the reopen, so the machine adopts
		// the values the same way Load would.
		v.machine.Load(int(meta.ValueCount))
	} else if IsAllocated(meta.Flags) {
		v.logger.Warn("reopening unsealed vector, previous contents are not trusted",
			"path", path, "capacity", meta.Capacity)
	}

	return v, nil
}

func isNewVector(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true, nil
	} else if err != nil {
		return false, fmt.Errorf("stat error: %w", err)
	}
	return false, nil
}

func (v *Vector) prepareVectorFile(path string, isNew bool) (*os.File, mmap.MMap, error) {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, fileModePerm)
	if err != nil {
		return nil, nil, err
	}
	if isNew {
		if err := fd.Truncate(fileSize(v.capacity)); err != nil {
			fd.Close()
			return nil, nil, fmt.Errorf("truncate error: %w", err)
		}
	}
	mmapData, err := mmap.Map(fd, mmap.RDWR, 0)
	if err != nil {
		fd.Close()
		return nil, nil, fmt.Errorf("mmap error: %w", err)
	}
	return fd, mmapData, nil
}

func writeInitialMetadata(mmapData mmap.MMap, capacity int64) {
	binary.LittleEndian.PutUint32(mmapData[0:4], vectorMagicNumber)
	binary.LittleEndian.PutUint32(mmapData[4:8], vectorHeaderVersion)
	now := uint64(time.Now().UnixNano())
	binary.LittleEndian.PutUint64(mmapData[8:16], now)
	binary.LittleEndian.PutUint64(mmapData[16:24], now)
	binary.LittleEndian.PutUint64(mmapData[24:32], uint64(capacity))
	binary.LittleEndian.PutUint64(mmapData[32:40], 0)
	binary.LittleEndian.PutUint32(mmapData[40:44], 0)
	crc := crc32.ChecksumIEEE(mmapData[0:56])
	binary.LittleEndian.PutUint32(mmapData[56:60], crc)
}

func fileSize(capacity int64) int64 {
	return vectorHeaderSize + capacity*valueSize
}

func valueOffset(index int) int64 {
	return vectorHeaderSize + int64(index)*valueSize
}

// AllocateNew zeroes the value region and opens the vector for writing.
// Reallocating a live vector is legal, the write cursor resets.
func (v *Vector) AllocateNew() error {
	if v.closed.Load() {
		return ErrClosed
	}
	v.machine.AllocateNew()

	v.mu.Lock()
	defer v.mu.Unlock()

	data := v.mmapData[vectorHeaderSize:]
	for i := range data {
		data[i] = 0
	}
	v.stampLocked(0, FlagAllocated)
	return nil
}

// SetInitialCapacity resizes the backing file to hold n values. Only
// legal before the vector is allocated.
func (v *Vector) SetInitialCapacity(n int) error {
	if v.closed.Load() {
		return ErrClosed
	}
	v.machine.SetInitialCapacity(n)
	if n < 0 {
		return fmt.Errorf("%w: capacity %d", ErrOutOfRange, n)
	}
	return v.resize(int64(n))
}

// Realloc grows the vector to hold n values. Growth mid-lifecycle is
// outside the tracked protocol, so the machine flags every call; in
// lenient mode the grow still happens.
func (v *Vector) Realloc(n int) error {
	if v.closed.Load() {
		return ErrClosed
	}
	v.machine.ReAlloc()
	if int64(n) < v.capacity {
		return fmt.Errorf("%w: cannot shrink from %d to %d", ErrOutOfRange, v.capacity, n)
	}
	return v.resize(int64(n))
}

func (v *Vector) resize(capacity int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.mmapData.Unmap(); err != nil {
		v.closed.Store(true)
		_ = v.fd.Close()
		return fmt.Errorf("unmap error: %w", err)
	}
	if err := v.fd.Truncate(fileSize(capacity)); err != nil {
		// the old mapping is gone, nothing left to salvage
		v.closed.Store(true)
		_ = v.fd.Close()
		return fmt.Errorf("truncate error: %w", err)
	}
	mmapData, err := mmap.Map(v.fd, mmap.RDWR, 0)
	if err != nil {
		v.closed.Store(true)
		_ = v.fd.Close()
		return fmt.Errorf("mmap error: %w", err)
	}
	v.mmapData = mmapData
	v.capacity = capacity

	binary.LittleEndian.PutUint64(v.mmapData[24:32], uint64(capacity))
	binary.LittleEndian.PutUint64(v.mmapData[16:24], uint64(time.Now().UnixNano()))
	v.stampCRCLocked()
	return nil
}

// Set writes value at index. Between AllocateNew and SetValueCount
// indexes must strictly increase; the machine flags anything else.
func (v *Vector) Set(index int, value int64) error {
	if v.closed.Load() {
		return ErrClosed
	}
	v.machine.Write(index)
	if index < 0 || int64(index) >= v.capacity {
		return fmt.Errorf("%w: index %d, capacity %d", ErrOutOfRange, index, v.capacity)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	binary.LittleEndian.PutUint64(v.mmapData[valueOffset(index):], uint64(value))
	return nil
}

// Get reads the value at index. Only sealed vectors are readable in
// protocol terms, and only up to the sealed count.
func (v *Vector) Get(index int) (int64, error) {
	if v.closed.Load() {
		return 0, ErrClosed
	}
	v.machine.Read(index)
	if index < 0 || int64(index) >= v.capacity {
		return 0, fmt.Errorf("%w: index %d, capacity %d", ErrOutOfRange, index, v.capacity)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	return int64(binary.LittleEndian.Uint64(v.mmapData[valueOffset(index):])), nil
}

// CopyFrom copies one value from src. Point copies bypass the write
// protocol, so the machine flags every call; in lenient mode the copy
// still happens.
func (v *Vector) CopyFrom(src *Vector, srcIndex, dstIndex int) error {
	if v.closed.Load() || src.closed.Load() {
		return ErrClosed
	}
	v.machine.Copy(srcIndex, dstIndex)
	if srcIndex < 0 || int64(srcIndex) >= src.capacity {
		return fmt.Errorf("%w: source index %d, capacity %d", ErrOutOfRange, srcIndex, src.capacity)
	}
	if dstIndex < 0 || int64(dstIndex) >= v.capacity {
		return fmt.Errorf("%w: index %d, capacity %d", ErrOutOfRange, dstIndex, v.capacity)
	}

	src.mu.RLock()
	value := binary.LittleEndian.Uint64(src.mmapData[valueOffset(srcIndex):])
	src.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	binary.LittleEndian.PutUint64(v.mmapData[valueOffset(dstIndex):], value)
	return nil
}

// SetValueCount seals the vector at count values and persists the seal.
func (v *Vector) SetValueCount(count int) error {
	if v.closed.Load() {
		return ErrClosed
	}
	v.machine.SetValueCount(count)
	if count < 0 || int64(count) > v.capacity {
		return fmt.Errorf("%w: count %d, capacity %d", ErrOutOfRange, count, v.capacity)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.stampLocked(int64(count), FlagAllocated|FlagSealed)

	if v.syncOption == MsyncOnSeal {
		if err := v.mmapData.Flush(); err != nil {
			return fmt.Errorf("mmap flush error after seal: %w", err)
		}
	}
	return nil
}

// ValueCount returns the sealed value count, 0 while unsealed.
func (v *Vector) ValueCount() int {
	if v.closed.Load() {
		return 0
	}
	v.machine.GetValueCount()

	v.mu.RLock()
	defer v.mu.RUnlock()
	meta, err := decodeVectorHeader(v.mmapData[:vectorHeaderSize])
	if err != nil {
		panic(err)
	}
	return int(meta.ValueCount)
}

// Zero discards all values: the region is zero-filled and the seal
// removed. A writable vector stays writable with its cursor reset; a
// sealed vector goes back to empty.
func (v *Vector) Zero() error {
	if v.closed.Load() {
		return ErrClosed
	}
	v.machine.ZeroVector()

	v.mu.Lock()
	defer v.mu.Unlock()

	data := v.mmapData[vectorHeaderSize:]
	for i := range data {
		data[i] = 0
	}
	flags := binary.LittleEndian.Uint32(v.mmapData[40:44])
	flags &^= FlagSealed
	v.stampLocked(0, flags)
	return nil
}

// TransferTo moves the sealed contents into dst, leaving the source
// empty. The definition crosses as serialized bytes, the same form it
// takes between processes.
func (v *Vector) TransferTo(dst *Vector) error {
	if v.closed.Load() {
		return ErrClosed
	}
	if dst.closed.Load() {
		return ErrClosed
	}

	meta := v.header()
	if !IsSealed(meta.Flags) {
		return ErrNotSealed
	}
	// checked before the source empties, a refused load must not lose values
	if meta.ValueCount > dst.capacity {
		return fmt.Errorf("%w: need %d slots, have %d", ErrCapacity, meta.ValueCount, dst.capacity)
	}
	defData, values := v.export(0, int(meta.ValueCount))

	v.machine.Transfer()

	v.mu.Lock()
	data := v.mmapData[vectorHeaderSize:]
	for i := range data {
		data[i] = 0
	}
	v.stampLocked(0, 0)
	v.mu.Unlock()

	return dst.Load(defData, values)
}

// SplitAndTransferTo copies length values starting at start into dst.
// The source stays sealed and readable; dst adopts the slice under its
// own machine.
func (v *Vector) SplitAndTransferTo(dst *Vector, start, length int) error {
	if v.closed.Load() {
		return ErrClosed
	}
	if dst.closed.Load() {
		return ErrClosed
	}

	meta := v.header()
	if !IsSealed(meta.Flags) {
		return ErrNotSealed
	}
	v.machine.SplitAndTransfer(start, length)
	if start < 0 || length < 0 || int64(start)+int64(length) > meta.ValueCount {
		return fmt.Errorf("%w: split [%d, %d) of %d values", ErrOutOfRange, start, start+length, meta.ValueCount)
	}

	defData, values := v.export(start, length)
	return dst.Load(defData, values)
}

// export serializes the definition and copies out length values
// starting at start.
func (v *Vector) export(start, length int) ([]byte, []byte) {
	defData := v.builder.BuildRecordBatchDef(batchdef.BatchDef{
		ValueCount: int64(length),
		Fields: []batchdef.FieldDef{{
			Name:   v.name,
			TypeID: int32(arrow.INT64),
			Width:  valueSize,
		}},
	})

	v.mu.RLock()
	defer v.mu.RUnlock()
	values := make([]byte, int64(length)*valueSize)
	copy(values, v.mmapData[valueOffset(start):])
	return defData, values
}

// Load adopts a serialized definition plus value bytes produced by
// TransferTo or SplitAndTransferTo on another vector. Only legal on an
// empty vector.
func (v *Vector) Load(defData []byte, values []byte) error {
	if v.closed.Load() {
		return ErrClosed
	}
	def, err := batchdef.ParseRecordBatchDef(defData)
	if err != nil {
		return err
	}
	if err := checkDef(def); err != nil {
		return err
	}
	if int64(len(values)) < def.ValueCount*valueSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, def.ValueCount*valueSize, len(values))
	}
	if def.ValueCount > v.capacity {
		return fmt.Errorf("%w: need %d slots, have %d", ErrCapacity, def.ValueCount, v.capacity)
	}
	v.machine.Load(int(def.ValueCount))

	v.mu.Lock()
	defer v.mu.Unlock()
	copy(v.mmapData[vectorHeaderSize:], values[:def.ValueCount*valueSize])
	v.stampLocked(def.ValueCount, FlagAllocated|FlagSealed)
	return nil
}

func checkDef(def batchdef.BatchDef) error {
	if def.ValueCount < 0 {
		return fmt.Errorf("%w: negative value count %d", ErrBadDef, def.ValueCount)
	}
	if len(def.Fields) != 1 {
		return fmt.Errorf("%w: %d fields", ErrBadDef, len(def.Fields))
	}
	f := def.Fields[0]
	if f.TypeID != int32(arrow.INT64) || f.Width != valueSize {
		return fmt.Errorf("%w: type %d width %d", ErrBadDef, f.TypeID, f.Width)
	}
	return nil
}

// Sync msyncs the memory-mapped file and fsyncs the underlying file.
func (v *Vector) Sync() error {
	if v.closed.Load() {
		return ErrClosed
	}

	if err := v.mmapData.Flush(); err != nil {
		return fmt.Errorf("mmap flush error: %w", err)
	}

	if err := v.fd.Sync(); err != nil {
		return fmt.Errorf("fsync error: %w", err)
	}

	return nil
}

// Close flushes, unmaps and closes the vector file. The machine sees a
// release. Close is idempotent.
func (v *Vector) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	v.machine.Release()

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.mmapData.Flush(); err != nil {
		defer func() {
			_ = v.mmapData.Unmap()
			_ = v.fd.Close()
		}()
		return fmt.Errorf("sync error during close: %w", err)
	}
	if err := v.fd.Sync(); err != nil {
		defer func() {
			_ = v.mmapData.Unmap()
			_ = v.fd.Close()
		}()
		return fmt.Errorf("fsync error during close: %w", err)
	}

	if err := v.mmapData.Unmap(); err != nil {
		_ = v.fd.Close()
		return fmt.Errorf("unmap error: %w", err)
	}

	if err := v.fd.Close(); err != nil {
		return fmt.Errorf("file close error: %w", err)
	}

	return nil
}

func (v *Vector) header() *VectorHeader {
	v.mu.RLock()
	defer v.mu.RUnlock()
	meta, err := decodeVectorHeader(v.mmapData[:vectorHeaderSize])
	if err != nil {
		panic(err)
	}
	return meta
}

// stampLocked persists value count and flags and refreshes the header.
func (v *Vector) stampLocked(valueCount int64, flags uint32) {
	binary.LittleEndian.PutUint64(v.mmapData[16:24], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(v.mmapData[32:40], uint64(valueCount))
	binary.LittleEndian.PutUint32(v.mmapData[40:44], flags)
	v.stampCRCLocked()
}

func (v *Vector) stampCRCLocked() {
	crc := crc32.ChecksumIEEE(v.mmapData[0:56])
	binary.LittleEndian.PutUint32(v.mmapData[56:60], crc)
}

func (v *Vector) GetLastModifiedAt() int64 {
	return v.header().LastModifiedAt
}

func (v *Vector) GetFlags() uint32 {
	return v.header().Flags
}

// Sealed reports whether the vector has a persisted value count.
func (v *Vector) Sealed() bool {
	return IsSealed(v.GetFlags())
}

func (v *Vector) Capacity() int {
	return int(v.capacity)
}

func (v *Vector) Name() string {
	return v.name
}

// Machine is the lifecycle verifier attached to this vector. Nil when
// checking is compiled out.
func (v *Vector) Machine() *vstate.Machine {
	return v.machine
}

// VectorFileName returns the file name of a vector file.
func VectorFileName(dirPath string, name string) string {
	return filepath.Join(dirPath, name+".vec")
}
