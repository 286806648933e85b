package wpp

import "maps"

type sourceKind int

const (
	sourcePath sourceKind = iota + 1
	sourceEncoded
)

// FileSource is where a document comes from: a local path or a data URI.
type FileSource struct {
	kind  sourceKind
	value string
}

// FilePath reads the document from disk at send time.
func FilePath(path string) FileSource { return FileSource{kind: sourcePath, value: path} }

// EncodedFile uses an already encoded data URI and skips file access.
func EncodedFile(dataURI string) FileSource { return FileSource{kind: sourceEncoded, value: dataURI} }

// ParseFileSource picks EncodedFile for data URIs and FilePath otherwise.
func ParseFileSource(s string) FileSource {
	if IsDataURI(s) {
		return EncodedFile(s)
	}
	return FilePath(s)
}

func (f FileSource) IsEncoded() bool { return f.kind == sourceEncoded }

func (f FileSource) String() string {
	if f.kind == sourceEncoded {
		return "<data uri>"
	}
	return f.value
}

// FileNameOrOptions is the third argument of SendFile: either a filename
// with a caption, or a complete options bag handed to the page as is.
type FileNameOrOptions struct {
	kind    nameKind
	name    string
	caption string
	opts    map[string]any
}

type nameKind int

const (
	nameBare nameKind = iota + 1
	nameOptions
)

// FileName sends with type auto-detect and the given filename and caption.
// An empty name is filled from the path basename.
func FileName(name, caption string) FileNameOrOptions {
	return FileNameOrOptions{kind: nameBare, name: name, caption: caption}
}

// FileOptions passes opts to WPP.chat.sendFileMessage unchanged.
func FileOptions(opts map[string]any) FileNameOrOptions {
	return FileNameOrOptions{kind: nameOptions, opts: opts}
}

// options builds a fresh options map, or nil for the zero value.
func (n FileNameOrOptions) options() map[string]any {
	switch n.kind {
	case nameOptions:
		if n.opts == nil {
			return map[string]any{}
		}
		return maps.Clone(n.opts)
	case nameBare:
		return map[string]any{
			"type":     "auto-detect",
			"filename": n.name,
			"caption":  n.caption,
		}
	default:
		return nil
	}
}
