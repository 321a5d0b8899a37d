package constants

// ID prefixes for metadata rows
const (
	PrefixObject = "obj_"
	PrefixField  = "fld_"
	PrefixTable  = "tbl_"
)

// PolymorphicTypeSuffix names the discriminator column of a polymorphic lookup.
const PolymorphicTypeSuffix = "_type"
