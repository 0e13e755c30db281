package flashpart

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/gostonefire/flashring/crt"
	"github.com/gostonefire/flashring/internal/conf"
	"golang.org/x/sys/unix"
)

// FileConf - Is a struct to be passed in the call to CreateFilePartition and contains
// configuration that affects partition image creation.
//   - Name is the name to base the image file name on
//   - SectorSize is the emulated flash sector size, must be a power of two
//   - PartitionSize is the emulated partition size, must be a multiple of the sector size
type FileConf struct {
	Name          string
	SectorSize    int64
	PartitionSize int64
}

// FilePartition - Represents a flash partition emulated in an image file on the host
// filesystem. The image starts with a one sector superblock carrying the geometry, the
// partition body follows and is kept in flash semantics, i.e. an erase writes 0xFF over
// whole sectors. Every write and erase is followed by a data sync so the image survives a
// host crash the same way real flash survives power loss.
type FilePartition struct {
	fileName   string
	file       *os.File
	sectorSize int64
	size       int64
}

// GetImageFileName - Returns the partition image file name given the partition name
func GetImageFileName(name string) (fileName string) {
	return fmt.Sprintf("%s-part.bin", name)
}

// CreateFilePartition - Creates a new partition image file with the whole body in erased
// state. If the file already exists it is truncated first, hence deleting all existing data.
//   - fileConf is a FileConf struct providing configuration for the image to create
//
// It returns:
//   - part which is a pointer to the created instance
//   - err which is a standard Go type of error
func CreateFilePartition(fileConf FileConf) (part *FilePartition, err error) {
	if fileConf.SectorSize <= 0 || fileConf.SectorSize&(fileConf.SectorSize-1) != 0 {
		err = crt.InvalidSize{}
		return
	}
	if fileConf.PartitionSize <= 0 || fileConf.PartitionSize%fileConf.SectorSize != 0 {
		err = crt.InvalidSize{}
		return
	}
	if fileConf.SectorSize < conf.ImageSuperblockLength {
		err = crt.InvalidSize{}
		return
	}
	if fileConf.Name == "" {
		err = fmt.Errorf("name can not be empty, it will be used to name the image file")
		return
	}

	fileName := GetImageFileName(fileConf.Name)
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		err = fmt.Errorf("error while open/create new partition image file: %s", err)
		return
	}

	superblock := make([]byte, fileConf.SectorSize)
	binary.LittleEndian.PutUint32(superblock[conf.ImageMagicOffset:], conf.ImageMagic)
	binary.LittleEndian.PutUint16(superblock[conf.ImageVersionOffset:], conf.ImageVersion)
	binary.LittleEndian.PutUint32(superblock[conf.ImageSectorSizeOffset:], uint32(fileConf.SectorSize))
	binary.LittleEndian.PutUint32(superblock[conf.ImagePartitionSizeOffset:], uint32(fileConf.PartitionSize))

	_, err = file.WriteAt(superblock, 0)
	if err != nil {
		_ = file.Close()
		err = fmt.Errorf("error while writing partition image superblock: %s", err)
		return
	}

	body := make([]byte, fileConf.SectorSize)
	for i := range body {
		body[i] = 0xFF
	}
	for offset := int64(0); offset < fileConf.PartitionSize; offset += fileConf.SectorSize {
		_, err = file.WriteAt(body, fileConf.SectorSize+offset)
		if err != nil {
			_ = file.Close()
			err = fmt.Errorf("error while erasing new partition image body: %s", err)
			return
		}
	}

	err = file.Sync()
	if err != nil {
		_ = file.Close()
		err = fmt.Errorf("error while syncing new partition image: %s", err)
		return
	}

	part = &FilePartition{
		fileName:   fileName,
		file:       file,
		sectorSize: fileConf.SectorSize,
		size:       fileConf.PartitionSize,
	}

	return
}

// OpenFilePartition - Opens an existing partition image by partition name and does some
// rudimentary checks of its validity. A missing image file results in a crt.NotFound error.
//   - name is the name of an existing partition image
//
// It returns:
//   - part which is a pointer to the opened instance
//   - err which is a standard Go type of error
func OpenFilePartition(name string) (part *FilePartition, err error) {
	fileName := GetImageFileName(name)

	stat, e := os.Stat(fileName)
	if e != nil {
		err = crt.NotFound{}
		return
	}

	file, err := os.OpenFile(fileName, os.O_RDWR, 0644)
	if err != nil {
		err = fmt.Errorf("unable to open existing partition image file: %s", err)
		return
	}

	superblock := make([]byte, conf.ImageSuperblockLength)
	_, err = file.ReadAt(superblock, 0)
	if err != nil {
		_ = file.Close()
		err = fmt.Errorf("unable to read superblock from partition image file: %s", err)
		return
	}

	if binary.LittleEndian.Uint32(superblock[conf.ImageMagicOffset:]) != conf.ImageMagic {
		_ = file.Close()
		err = fmt.Errorf("file doesn't seem to be a partition image, magic number mismatch")
		return
	}
	if binary.LittleEndian.Uint16(superblock[conf.ImageVersionOffset:]) != conf.ImageVersion {
		_ = file.Close()
		err = fmt.Errorf("partition image version is not supported")
		return
	}

	sectorSize := int64(binary.LittleEndian.Uint32(superblock[conf.ImageSectorSizeOffset:]))
	size := int64(binary.LittleEndian.Uint32(superblock[conf.ImagePartitionSizeOffset:]))

	if stat.Size() != sectorSize+size {
		_ = file.Close()
		err = fmt.Errorf("actual file size doesn't conform with superblock indicated size")
		return
	}

	part = &FilePartition{
		fileName:   fileName,
		file:       file,
		sectorSize: sectorSize,
		size:       size,
	}

	return
}

// SectorSize - Returns the emulated flash sector size
func (F *FilePartition) SectorSize() int64 {
	return F.sectorSize
}

// Size - Returns the emulated partition size
func (F *FilePartition) Size() int64 {
	return F.size
}

// Read - Reads len(buf) bytes starting at offset within the partition body
func (F *FilePartition) Read(offset int64, buf []byte) (err error) {
	if offset < 0 || offset+int64(len(buf)) > F.size {
		err = fmt.Errorf("read of %d bytes at offset %d is outside the partition", len(buf), offset)
		return
	}

	_, err = F.file.ReadAt(buf, F.sectorSize+offset)

	return
}

// Write - Writes len(buf) bytes starting at offset within the partition body and syncs the
// image to stable storage
func (F *FilePartition) Write(offset int64, buf []byte) (err error) {
	if offset < 0 || offset+int64(len(buf)) > F.size {
		err = fmt.Errorf("write of %d bytes at offset %d is outside the partition", len(buf), offset)
		return
	}

	_, err = F.file.WriteAt(buf, F.sectorSize+offset)
	if err != nil {
		return
	}

	err = unix.Fdatasync(int(F.file.Fd()))

	return
}

// EraseRange - Erases the given sector aligned range back to 0xFF and syncs the image to
// stable storage
func (F *FilePartition) EraseRange(offset int64, length int64) (err error) {
	if offset%F.sectorSize != 0 || length%F.sectorSize != 0 {
		err = fmt.Errorf("erase range %d+%d is not sector aligned", offset, length)
		return
	}
	if offset < 0 || length < 0 || offset+length > F.size {
		err = fmt.Errorf("erase range %d+%d is outside the partition", offset, length)
		return
	}

	sector := make([]byte, F.sectorSize)
	for i := range sector {
		sector[i] = 0xFF
	}
	for o := offset; o < offset+length; o += F.sectorSize {
		_, err = F.file.WriteAt(sector, F.sectorSize+o)
		if err != nil {
			return
		}
	}

	err = unix.Fdatasync(int(F.file.Fd()))

	return
}

// CloseFile - Closes the partition image file
func (F *FilePartition) CloseFile() {
	if F.file != nil {
		_ = F.file.Sync()
		_ = F.file.Close()
		F.file = nil
	}
}

// RemoveFilePartition - Removes a partition image file, make sure to close it first before
// calling this function
func RemoveFilePartition(name string) (err error) {
	fileName := GetImageFileName(name)

	// Only try to remove if it exists, and is not by accident a directory
	if stat, ok := os.Stat(fileName); ok == nil {
		if !stat.IsDir() {
			err = os.Remove(fileName)
			if err != nil {
				err = fmt.Errorf("error while removing partition image file: %s", err)
				return
			}
		}
	}

	return
}
