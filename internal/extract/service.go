package extract

import "chaptr/internal/rag"

// Service adapts this package to the pipeline's Extractor contract.
type Service struct{}

// NewService creates the extraction service.
func NewService() *Service { return &Service{} }

// Supported reports whether the filename's extension can be extracted.
func (s *Service) Supported(filename string) bool {
	return Supported(filename)
}

// Extract pulls normalized text out of an uploaded file.
func (s *Service) Extract(filename string, data []byte) (*rag.ExtractedText, error) {
	res, err := Extract(filename, data)
	if err != nil {
		return nil, err
	}
	return &rag.ExtractedText{
		Text:      res.Text,
		PageCount: res.PageCount,
		WordCount: res.WordCount,
	}, nil
}

// DetectChapters finds chapter boundaries in normalized text.
func (s *Service) DetectChapters(text string) []rag.ChapterBoundary {
	return DetectChapters(text)
}
