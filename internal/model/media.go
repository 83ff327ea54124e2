package model

import (
	"path/filepath"
	"strings"
)

var mediaByExt = map[string]MediaType{
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".png":  MediaImage,
	".gif":  MediaImage,
	".bmp":  MediaImage,
	".webp": MediaImage,
	".svg":  MediaImage,
	".fig":  MediaImage,
	".pdf":  MediaDocument,
	".txt":  MediaDocument,
	".md":   MediaDocument,
	".doc":  MediaDocument,
	".docx": MediaDocument,
	".xls":  MediaDocument,
	".xlsx": MediaDocument,
	".ppt":  MediaDocument,
	".pptx": MediaDocument,
	".csv":  MediaDocument,
	".mp4":  MediaVideo,
	".mov":  MediaVideo,
	".mkv":  MediaVideo,
	".webm": MediaVideo,
	".mp3":  MediaAudio,
	".wav":  MediaAudio,
	".flac": MediaAudio,
	".ogg":  MediaAudio,
	".zip":  MediaArchive,
	".tar":  MediaArchive,
	".gz":   MediaArchive,
	".rar":  MediaArchive,
	".7z":   MediaArchive,
}

// MediaTypeFromName guesses a media type from the file extension, falling back
// to MediaOther.
func MediaTypeFromName(name string) MediaType {
	if mt, ok := mediaByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return MediaOther
}
