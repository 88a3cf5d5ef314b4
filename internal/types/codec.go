package types

import "github.com/cryptofs/cryptfs/internal/wirecodec"

// Encode writes the record's wire form (spec.md §6's InodeRecord layout).
func (r InodeRecord) Encode(w *wirecodec.Writer) {
	w.WriteUint64(r.Ino)
	w.WriteUint64(r.Size)
	w.WriteUint64(r.Blocks)
	w.WriteTime(r.Atime)
	w.WriteTime(r.Mtime)
	w.WriteTime(r.Ctime)
	w.WriteTime(r.Crtime)
	w.WriteUint8(uint8(r.Kind))
	w.WriteUint16(r.Perm)
	w.WriteUint32(r.Nlink)
	w.WriteUint32(r.Uid)
	w.WriteUint32(r.Gid)
	w.WriteUint32(r.Rdev)
	w.WriteUint32(r.Blksize)
	w.WriteUint32(r.Flags)
}

// DecodeInodeRecord reads a record written by InodeRecord.Encode.
func DecodeInodeRecord(r *wirecodec.Reader) (InodeRecord, error) {
	var rec InodeRecord
	rec.Ino = r.ReadUint64()
	rec.Size = r.ReadUint64()
	rec.Blocks = r.ReadUint64()
	rec.Atime = r.ReadTime()
	rec.Mtime = r.ReadTime()
	rec.Ctime = r.ReadTime()
	rec.Crtime = r.ReadTime()
	rec.Kind = FileType(r.ReadUint8())
	rec.Perm = r.ReadUint16()
	rec.Nlink = r.ReadUint32()
	rec.Uid = r.ReadUint32()
	rec.Gid = r.ReadUint32()
	rec.Rdev = r.ReadUint32()
	rec.Blksize = r.ReadUint32()
	rec.Flags = r.ReadUint32()
	if err := r.Err(); err != nil {
		return InodeRecord{}, err
	}
	return rec, nil
}

// DirEntryPayload is the encrypted content of one directory entry file: the
// child's inode number, kind, and plaintext name (spec.md §4.5 — the name is
// reconstructed from the payload, never from the on-disk hashed filename).
type DirEntryPayload struct {
	ChildIno uint64
	Kind     FileType
	Name     string
}

// Encode writes the entry's wire form.
func (e DirEntryPayload) Encode(w *wirecodec.Writer) {
	w.WriteUint64(e.ChildIno)
	w.WriteUint8(uint8(e.Kind))
	w.WriteString(e.Name)
}

// DecodeDirEntryPayload reads an entry written by DirEntryPayload.Encode.
func DecodeDirEntryPayload(r *wirecodec.Reader) (DirEntryPayload, error) {
	var e DirEntryPayload
	e.ChildIno = r.ReadUint64()
	e.Kind = FileType(r.ReadUint8())
	e.Name = r.ReadString()
	if err := r.Err(); err != nil {
		return DirEntryPayload{}, err
	}
	return e, nil
}
