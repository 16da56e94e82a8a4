package producer

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"cppide/internal/domain/execution"
	"cppide/internal/ports"
	"cppide/internal/source"
)

// Service implements ports.RequestProducer over an in-memory catalogue.
type Service struct {
	mu       sync.Mutex
	requests []execution.BuildRequest
	index    int
}

var _ ports.RequestProducer = (*Service)(nil)

// NewService builds a producer with the sample programs.
func NewService() *Service {
	return NewServiceWith(
		execution.BuildRequest{
			ID:       "hello",
			Language: execution.LanguageCPP,
			Source:   "#include <iostream>\n\nint main() {\n    std::cout << \"Hello, World!\" << std::endl;\n    return 0;\n}\n",
		},
		execution.BuildRequest{
			ID:       "echo",
			Language: execution.LanguageC,
			Source:   "#include <stdio.h>\n\nint main(void) {\n    char line[256];\n    while (fgets(line, sizeof line, stdin)) {\n        fputs(line, stdout);\n    }\n    return 0;\n}\n",
			Stdin:    []string{"first", "second"},
		},
	)
}

// NewServiceWith builds a producer that yields exactly the given requests.
func NewServiceWith(requests ...execution.BuildRequest) *Service {
	s := &Service{}
	for _, req := range requests {
		s.AddRequest(req)
	}
	return s
}

// FromFiles builds a producer from source files; the language follows the
// file extension.
func FromFiles(paths ...string) (*Service, error) {
	s := &Service{}
	for _, path := range paths {
		text, err := source.Open(path)
		if err != nil {
			return nil, err
		}
		s.AddRequest(execution.BuildRequest{Language: execution.LanguageForPath(path), Source: text})
	}
	return s, nil
}

// NextRequest returns the next request of the catalogue.
func (s *Service) NextRequest(ctx context.Context) (execution.BuildRequest, error) {
	select {
	case <-ctx.Done():
		return execution.BuildRequest{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.requests) {
		return execution.BuildRequest{}, io.EOF
	}

	req := s.requests[s.index]
	s.index++

	return req, nil
}

// AddRequest allows extending the catalogue at runtime.
func (s *Service) AddRequest(req execution.BuildRequest) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
}
