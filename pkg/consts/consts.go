package consts

const (
	// UDF sector size used for volume descriptor addressing.
	UDF_SECTOR_SIZE = 2048

	// Shift equivalent of UDF_SECTOR_SIZE.
	UDF_SECTOR_SHIFT = 11

	// Smallest logical block size accepted for a logical volume, also the minimum size of a file set extent.
	UDF_VIRTUAL_SECTOR_SIZE = 512

	// Size of a descriptor tag.
	UDF_TAG_SIZE = 16

	// Offset of the volume descriptor sequence extent inside the anchor volume descriptor pointer.
	UDF_ANCHOR_VDS_OFFSET = 16

	// Maximum number of partition descriptors and logical volume descriptors accepted.
	UDF_MAX_PARTITIONS      = 64
	UDF_MAX_LOGICAL_VOLUMES = 64

	// Maximum depth of nested records including the root.
	UDF_MAX_RECURSE_LEVELS = 1024

	// Limits applied across the whole record tree while parsing.
	UDF_MAX_ITEMS                   = 134217728
	UDF_MAX_FILES                   = 268435456
	UDF_MAX_EXTENTS                 = 1073741824
	UDF_MAX_FILE_NAME_LENGTH        = 858934592
	UDF_MAX_INLINE_EXTENTS_SIZE     = 858934592
	UDF_MAX_LOGICAL_BLOCK_SIZE      = UDF_MAX_EXTENTS
	UDF_FILE_IDENTIFIER_HEADER_SIZE = 38

	// Default number of bytes copied per chunk during extraction.
	UDF_EXTRACT_CHUNK_SIZE = UDF_SECTOR_SIZE * 4096

	// First sector of the volume recognition sequence. The sectors before it are reserved for system use.
	UDF_VRS_START_SECTOR = 16
	UDF_SYSTEM_AREA_SIZE = UDF_VRS_START_SECTOR * UDF_SECTOR_SIZE

	// Volume recognition sequence header size (type, identifier, version).
	UDF_VRS_HEADER_SIZE = 7

	// Volume recognition standard identifiers.
	UDF_STD_IDENTIFIER     = "BEA01"
	UDF_NSR02_IDENTIFIER   = "NSR02"
	UDF_NSR03_IDENTIFIER   = "NSR03"
	UDF_TEA01_IDENTIFIER   = "TEA01"
	UDF_BOOT2_IDENTIFIER   = "BOOT2"
	UDF_CDW02_IDENTIFIER   = "CDW02"
	ISO9660_STD_IDENTIFIER = "CD001"
)
