package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/quadrel/pecbridge/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is the persistence model backing every logical collection.
type Document struct {
	Collection   string         `gorm:"primaryKey;type:text"`
	ID           string         `gorm:"primaryKey;type:text"`
	PartitionKey string         `gorm:"type:text;index"`
	Payload      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }

// GormStore persists documents through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) ReadByID(ctx context.Context, collection, id, partitionKey string) (Item, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return toItem(doc), nil
}

func (s *GormStore) QueryPage(ctx context.Context, collection string, q Query, continuationToken string) (Page, error) {
	offset := 0
	if continuationToken != "" {
		cursor, err := pagination.DecodeCursor(continuationToken)
		if err != nil {
			return Page{}, fmt.Errorf("decode continuation token: %w", err)
		}
		if cursor.Collection != collection {
			return Page{}, fmt.Errorf("continuation token issued for collection %q", cursor.Collection)
		}
		offset = cursor.Offset
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	tx := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("id")
	if q.Field != "" {
		tx = tx.Where(datatypes.JSONQuery("payload").Equals(q.Value, q.Field))
	}

	var docs []Document
	// one extra row to detect whether more pages follow
	if err := tx.Offset(offset).Limit(pageSize + 1).Find(&docs).Error; err != nil {
		return Page{}, err
	}

	page := Page{}
	if len(docs) > pageSize {
		docs = docs[:pageSize]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			Collection: collection,
			Offset:     offset + pageSize,
		})
		if err != nil {
			return Page{}, err
		}
		page.HasMore = true
		page.ContinuationToken = token
	}

	page.Items = make([]Item, 0, len(docs))
	for _, doc := range docs {
		page.Items = append(page.Items, toItem(doc))
	}
	return page, nil
}

func (s *GormStore) QueryAll(ctx context.Context, collection string, q Query) ([]Item, error) {
	var items []Item
	token := ""
	for {
		page, err := s.QueryPage(ctx, collection, q, token)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if !page.HasMore {
			return items, nil
		}
		token = page.ContinuationToken
	}
}

func (s *GormStore) Upsert(ctx context.Context, collection, id, partitionKey string, doc any) (Outcome, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return Outcome{Status: http.StatusInternalServerError}, fmt.Errorf("marshal document: %w", err)
	}

	now := time.Now().UTC()
	record := Document{
		Collection:   collection,
		ID:           id,
		PartitionKey: partitionKey,
		Payload:      datatypes.JSON(payload),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"partition_key", "payload", "updated_at"}),
		}).
		Create(&record)
	if result.Error != nil {
		return Outcome{Status: http.StatusInternalServerError}, result.Error
	}
	return Outcome{Status: http.StatusOK}, nil
}

func toItem(doc Document) Item {
	return Item{
		ID:           doc.ID,
		PartitionKey: doc.PartitionKey,
		Data:         json.RawMessage(doc.Payload),
	}
}
