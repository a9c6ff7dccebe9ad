package votable

// Tag identifies the VOTable element a node represents.
type Tag int

const (
	TagOther Tag = iota
	TagVOTable
	TagResource
	TagTable
	TagField
	TagParam
	TagValues
	TagMin
	TagMax
	TagOption
	TagLink
	TagGroup
	TagFieldRef
	TagParamRef
	TagTimesys
	TagCoosys
	TagInfo
	TagDescription
	TagDefinitions
	TagData
	TagTableData
	TagTR
	TagTD
	TagBinary
	TagBinary2
	TagFITS
	TagStream
)

var tagByName = map[string]Tag{
	"VOTABLE":     TagVOTable,
	"RESOURCE":    TagResource,
	"TABLE":       TagTable,
	"FIELD":       TagField,
	"PARAM":       TagParam,
	"VALUES":      TagValues,
	"MIN":         TagMin,
	"MAX":         TagMax,
	"OPTION":      TagOption,
	"LINK":        TagLink,
	"GROUP":       TagGroup,
	"FIELDref":    TagFieldRef,
	"PARAMref":    TagParamRef,
	"TIMESYS":     TagTimesys,
	"COOSYS":      TagCoosys,
	"INFO":        TagInfo,
	"DESCRIPTION": TagDescription,
	"DEFINITIONS": TagDefinitions,
	"DATA":        TagData,
	"TABLEDATA":   TagTableData,
	"TR":          TagTR,
	"TD":          TagTD,
	"BINARY":      TagBinary,
	"BINARY2":     TagBinary2,
	"FITS":        TagFITS,
	"STREAM":      TagStream,
}

var tagNames = func() map[Tag]string {
	m := make(map[Tag]string, len(tagByName))
	for name, tag := range tagByName {
		m[tag] = name
	}
	return m
}()

// LookupTag returns the Tag for a local element name. Unknown names give TagOther.
func LookupTag(name string) Tag {
	return tagByName[name]
}

func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return "other"
}

// IsDataFormat reports whether the tag is one of the DATA serializations.
func (t Tag) IsDataFormat() bool {
	switch t {
	case TagTableData, TagBinary, TagBinary2, TagFITS:
		return true
	}
	return false
}
