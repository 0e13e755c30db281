package conf

// RingMagic - Magic number distinguishing an initialised ring buffer header from erased flash
const RingMagic uint32 = 0x005B15B1

// HeaderLength - Length of one serialized ring buffer header copy
const HeaderLength int64 = 20

// MagicOffset - Header offset to the magic number - 4 bytes
const MagicOffset int64 = 0

// FrontOffset - Header offset to the front record offset within the data ring - 4 bytes
const FrontOffset int64 = 4

// RecordNumOffset - Header offset to the number of valid records in the ring - 4 bytes
const RecordNumOffset int64 = 8

// SequenceOffset - Header offset to the monotonic header sequence number - 4 bytes
const SequenceOffset int64 = 12

// CrcOffset - Header offset to the CRC-32 over the header with this field zeroed - 4 bytes
const CrcOffset int64 = 16

// ImageMagic - Magic number identifying a partition image file ("FRNG")
const ImageMagic uint32 = 0x46524E47

// ImageVersion - Current partition image superblock version
const ImageVersion uint16 = 1

// ImageMagicOffset - Superblock offset to the image magic number - 4 bytes
const ImageMagicOffset int64 = 0

// ImageVersionOffset - Superblock offset to the image version - 2 bytes
const ImageVersionOffset int64 = 4

// ImageSectorSizeOffset - Superblock offset to the emulated flash sector size - 4 bytes
const ImageSectorSizeOffset int64 = 6

// ImagePartitionSizeOffset - Superblock offset to the emulated partition size - 4 bytes
const ImagePartitionSizeOffset int64 = 10

// ImageSuperblockLength - Length of the used part of the partition image superblock
const ImageSuperblockLength int64 = 14
