package organizer

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"orgsafe/pkg/fileops"
)

// Category folder names.
const (
	CategoryDocuments     = "Documents"
	CategoryImages        = "Images"
	CategoryVideos        = "Videos"
	CategoryAudio         = "Audio"
	CategoryArchives      = "Archives"
	CategoryCode          = "Code"
	CategorySpreadsheets  = "Spreadsheets"
	CategoryPresentations = "Presentations"
	CategoryOthers        = "Others"
)

// Categories lists every category folder, in display order.
var Categories = []string{
	CategoryDocuments, CategoryImages, CategoryVideos, CategoryAudio, CategoryArchives,
	CategoryCode, CategorySpreadsheets, CategoryPresentations, CategoryOthers,
}

// Categorizer maps a file name to a category folder.
type Categorizer interface {
	CategoryFor(filename string) string
}

// ContentCategorizer can also inspect file content when the name is not
// enough.
type ContentCategorizer interface {
	Categorizer
	CategoryForFile(path string) string
}

var extensionCategories = map[string]string{}

func init() {
	register := func(category string, exts ...string) {
		for _, ext := range exts {
			extensionCategories[ext] = category
		}
	}

	register(CategoryDocuments, ".pdf", ".doc", ".docx", ".txt", ".md", ".rtf", ".odt", ".tex", ".epub", ".pages")
	register(CategoryImages, ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".tiff", ".tif", ".heic", ".ico", ".raw", ".cr2", ".nef")
	register(CategoryVideos, ".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv", ".webm", ".m4v", ".mpg", ".mpeg")
	register(CategoryAudio, ".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a", ".wma", ".opus", ".aiff")
	register(CategoryArchives, ".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".xz", ".tgz", ".zst", ".dmg", ".iso")
	register(CategoryCode, ".go", ".js", ".ts", ".py", ".java", ".c", ".cpp", ".h", ".rs", ".rb", ".php", ".sh",
		".html", ".css", ".json", ".yaml", ".yml", ".xml", ".sql", ".swift", ".kt")
	register(CategorySpreadsheets, ".xls", ".xlsx", ".csv", ".ods", ".numbers", ".tsv")
	register(CategoryPresentations, ".ppt", ".pptx", ".odp", ".key")
}

// ExtensionCategorizer categorizes by file extension, optionally falling
// back to content sniffing for unknown extensions.
type ExtensionCategorizer struct {
	// Sniff enables content detection in CategoryForFile.
	Sniff bool
}

// CategoryFor returns the category for filename's extension, or Others.
func (c ExtensionCategorizer) CategoryFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if category, ok := extensionCategories[ext]; ok {
		return category
	}
	return CategoryOthers
}

// CategoryForFile categorizes by name first and sniffs the leading bytes of
// the file when the name gives no answer. The file is opened without
// following symlinks.
func (c ExtensionCategorizer) CategoryForFile(path string) string {
	category := c.CategoryFor(filepath.Base(path))
	if category != CategoryOthers || !c.Sniff {
		return category
	}

	f, err := fileops.OpenNoFollow(path)
	if err != nil {
		return CategoryOthers
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(io.LimitReader(f, 3072))
	if err != nil {
		return CategoryOthers
	}
	return categoryForMIME(mt)
}

func categoryForMIME(mt *mimetype.MIME) string {
	for m := mt; m != nil; m = m.Parent() {
		if category, ok := extensionCategories[m.Extension()]; ok {
			return category
		}
		mime := m.String()
		switch {
		case strings.HasPrefix(mime, "image/"):
			return CategoryImages
		case strings.HasPrefix(mime, "video/"):
			return CategoryVideos
		case strings.HasPrefix(mime, "audio/"):
			return CategoryAudio
		}
	}
	if mt.Is("text/plain") {
		return CategoryDocuments
	}
	return CategoryOthers
}

// SubfolderResolver derives an optional subfolder under the category folder,
// e.g. from file metadata. An empty result means none.
type SubfolderResolver interface {
	Subfolder(file fileops.FileInfo) string
}

// DateSubfolder files by modification date as YYYY/MM.
type DateSubfolder struct{}

func (DateSubfolder) Subfolder(file fileops.FileInfo) string {
	if file.ModTime.IsZero() {
		return ""
	}
	return filepath.Join(file.ModTime.Format("2006"), file.ModTime.Format("01"))
}
