package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/model"
	"cv-smart-go/internal/repository"
	"cv-smart-go/pkg/storage"

	"gorm.io/datatypes"
)

// memDocs 是内存版 DocumentRepository，Update 按列写入。
type memDocs struct {
	mu      sync.Mutex
	docs    map[string]*model.Document
	updates []repository.Fields
	failOn  func(fields repository.Fields) error
}

func newMemDocs(docs ...*model.Document) *memDocs {
	m := &memDocs{docs: make(map[string]*model.Document)}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *memDocs) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *memDocs) Update(_ context.Context, id string, fields repository.Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		if err := m.failOn(fields); err != nil {
			return err
		}
	}
	d, ok := m.docs[id]
	if !ok {
		return apperr.New(apperr.NotFound, "memDocs.Update", id)
	}
	m.updates = append(m.updates, fields)
	for k, v := range fields {
		switch k {
		case "status":
			d.Status = v.(model.Status)
		case "analysis_data":
			if v == nil {
				d.AnalysisData = nil
			} else {
				d.AnalysisData = v.(datatypes.JSON)
			}
		case "error_details":
			d.ErrorDetails = v.(string)
		case "identity_provisional":
			d.IdentityProvisional = v.(bool)
		case "candidate_name":
			d.CandidateName = v.(string)
		case "position":
			d.Position = v.(string)
		case "notes":
			d.Notes = v.(string)
		default:
			return fmt.Errorf("unexpected column %s", k)
		}
	}
	return nil
}

func (m *memDocs) FindByID(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "memDocs.FindByID", id)
	}
	cp := *d
	return &cp, nil
}

func (m *memDocs) FindAll(context.Context) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memDocs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return apperr.New(apperr.NotFound, "memDocs.Delete", id)
	}
	delete(m.docs, id)
	return nil
}

func (m *memDocs) snapshot(id string) model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.docs[id]
}

// memStore 记录删除的对象。
type memStore struct {
	mu      sync.Mutex
	removed []string
	failKey string
}

func (s *memStore) Upload(context.Context, string, string, []byte, storage.UploadOptions) error {
	return nil
}

func (s *memStore) Remove(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.failKey {
		return fmt.Errorf("remove %s: access denied", key)
	}
	s.removed = append(s.removed, bucket+"/"+key)
	return nil
}

func (s *memStore) PublicURL(bucket, key string) string {
	return "https://cdn.example.com/" + bucket + "/" + key
}

// memProgress 保存所有快照。
type memProgress struct {
	mu    sync.Mutex
	saved []repository.Progress
}

func (p *memProgress) Save(_ context.Context, pr repository.Progress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, pr)
	return nil
}

func (p *memProgress) Latest(_ context.Context, id string) (*repository.Progress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.saved) - 1; i >= 0; i-- {
		if p.saved[i].DocumentID == id {
			pr := p.saved[i]
			return &pr, nil
		}
	}
	return nil, nil
}

func (p *memProgress) Subscribe(ctx context.Context, _ string) (<-chan repository.Progress, error) {
	ch := make(chan repository.Progress)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (p *memProgress) last() repository.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[len(p.saved)-1]
}
