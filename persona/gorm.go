package persona

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentroom/types"
)

// Record is the persistent shape of a persona.
type Record struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:128"`
	Description string `gorm:"type:text"`

	Empathy     int
	Humor       int
	Sociability int
	Creativity  int
	Knowledge   int

	Keywords   []string           `gorm:"serializer:json"`
	Interests  map[string]float64 `gorm:"serializer:json"`
	Expressive bool

	// SortOrder keeps List stable across drivers.
	SortOrder int `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名
func (Record) TableName() string { return "personas" }

func (r Record) descriptor() Descriptor {
	return Descriptor{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Traits: Traits{
			Empathy:     r.Empathy,
			Humor:       r.Humor,
			Sociability: r.Sociability,
			Creativity:  r.Creativity,
			Knowledge:   r.Knowledge,
		},
		Keywords:   r.Keywords,
		Interests:  r.Interests,
		Expressive: r.Expressive,
	}
}

func recordFrom(d Descriptor, order int) Record {
	return Record{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Empathy:     d.Traits.Empathy,
		Humor:       d.Traits.Humor,
		Sociability: d.Traits.Sociability,
		Creativity:  d.Traits.Creativity,
		Knowledge:   d.Traits.Knowledge,
		Keywords:    d.Keywords,
		Interests:   d.Interests,
		Expressive:  d.Expressive,
		SortOrder:   order,
	}
}

// GormDirectory is a Directory backed by a GORM database.
type GormDirectory struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormDirectory wraps db. Call Migrate before first use on a fresh schema.
func NewGormDirectory(db *gorm.DB, logger *zap.Logger) *GormDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormDirectory{
		db:     db,
		logger: logger.With(zap.String("component", "persona_directory")),
	}
}

// Migrate 自动迁移 personas 表
func (g *GormDirectory) Migrate(ctx context.Context) error {
	if err := g.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("failed to auto migrate personas: %w", err)
	}
	return nil
}

// Upsert inserts or updates descriptors, assigning sort order by position.
func (g *GormDirectory) Upsert(ctx context.Context, descs ...Descriptor) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, d := range descs {
			rec := recordFrom(d, i)
			if err := tx.Save(&rec).Error; err != nil {
				return fmt.Errorf("save persona %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

func (g *GormDirectory) List(ctx context.Context) ([]Descriptor, error) {
	var recs []Record
	if err := g.db.WithContext(ctx).Order("sort_order ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, types.NewError(types.ErrDirectory, "list personas").WithCause(err)
	}
	out := make([]Descriptor, len(recs))
	for i, r := range recs {
		out[i] = r.descriptor()
	}
	return out, nil
}

func (g *GormDirectory) Get(ctx context.Context, id string) (*Descriptor, error) {
	var rec Record
	err := g.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get persona %s: %w", id, ErrNotFound)
	}
	if err != nil {
		g.logger.Error("persona lookup failed", zap.String("id", id), zap.Error(err))
		return nil, types.NewError(types.ErrDirectory, "get persona").WithCause(err)
	}
	d := rec.descriptor()
	return &d, nil
}
