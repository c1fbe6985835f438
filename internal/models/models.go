package models

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

const name string = "github.com/LinglingXiang/exodus-gw/internal/models"

var tracer = otel.Tracer(name)

type ExodusModel interface {
	GetID() uuid.UUID
}

// Every model, in dependency order
func All() []any {
	return []any{&Publish{}, &Item{}, &Task{}}
}

// Builds the schema straight from the models, bypassing the revision chain.
// Not for production use.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	ctx, span := tracer.Start(ctx, "AutoMigrate")
	defer span.End()

	if err := db.WithContext(ctx).AutoMigrate(All()...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create schema from models")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created schema from models")
	return nil
}

// gets an object by id from the db
func ByID[T ExodusModel](ctx context.Context, db *gorm.DB, id uuid.UUID) (*T, error) {
	var data T

	ctx, span := tracer.Start(ctx, "ByID")
	defer span.End()

	db = db.WithContext(ctx)

	span.SetAttributes(
		attribute.String("id", id.String()),
		attribute.String("type", reflect.TypeOf(data).String()),
	)

	span.AddEvent("getting object by id")
	err := db.Where("id = ?", id).First(&data).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get object by id")
		return nil, err
	}

	return &data, nil
}

// checks if an object exists in the db
func Exists[T ExodusModel](
	ctx context.Context,
	db *gorm.DB,
	query any,
	args ...any,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "Exists")
	defer span.End()

	argStrings := make([]string, 0, len(args))
	for _, arg := range args {
		argStrings = append(argStrings, fmt.Sprint(arg))
	}

	span.SetAttributes(
		attribute.String("query", fmt.Sprint(query)),
		attribute.StringSlice("args", argStrings),
		attribute.String("type", reflect.TypeOf((*T)(nil)).Elem().String()),
	)

	var data T
	var count int64

	span.AddEvent("checking if element matching conditions exists")
	result := db.WithContext(ctx).Model(&data).Where(query, args...).Limit(1).Count(&count)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}

		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to fetch from the db")
		return false, fmt.Errorf("failed to fetch from the db: %w", result.Error)
	}

	return count > 0, nil
}

// The value written to updated columns on every modification
func touch(tx *gorm.DB) time.Time {
	now := tx.NowFunc().UTC()
	tx.Statement.SetColumn("Updated", now)
	return now
}
