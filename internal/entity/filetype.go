package entity

// Content types accepted at upload time. Built once, read-only after init.
var categoryByContentType = map[string]FileCategory{
	"application/pdf": CategoryDocument,

	"image/jpg":  CategoryImage,
	"image/jpeg": CategoryImage,
	"image/png":  CategoryImage,
	"image/gif":  CategoryImage,
	"image/bmp":  CategoryImage,
	"image/webp": CategoryImage,
}

// CategoryForContentType maps a declared MIME type to a file category.
// Anything outside the table is CategoryUnknown and must be rejected
// before a job is created.
func CategoryForContentType(contentType string) FileCategory {
	if c, ok := categoryByContentType[contentType]; ok {
		return c
	}
	return CategoryUnknown
}
