package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"horizon.shop/internal/store"
)

const validID = "01ARZ3NDEKTSV4RRFFQ69G5FAV"

func newMock(t *testing.T) (*Backend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBackend(db, time.Second), mock
}

func TestFindAllUsesContainment(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select body from documents`)).
		WithArgs(store.Orders, `{"userEmail":"a@x.com"}`).
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"_id":"1","userEmail":"a@x.com"}`)).
			AddRow([]byte(`{"_id":"2","userEmail":"a@x.com"}`)))

	docs, err := b.Collection(store.Orders).FindAll(context.Background(), store.Filter{"userEmail": "a@x.com"})
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(docs) != 2 || docs[1]["_id"] != "2" {
		t.Fatalf("unexpected docs: %#v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindAllEmptyFilter(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select body from documents`)).
		WithArgs(store.Products, `{}`).
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	docs, err := b.Collection(store.Products).FindAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", docs)
	}
}

func TestFindOneByID(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select body from documents where collection = $1 and id = $2 limit 1`)).
		WithArgs(store.Products, validID).
		WillReturnError(sql.ErrNoRows)

	_, err := b.Collection(store.Products).FindOne(context.Background(), store.ByID(validID))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindOneInvalidIDSkipsDatabase(t *testing.T) {
	b, mock := newMock(t)
	_, err := b.Collection(store.Products).FindOne(context.Background(), store.ByID("abc"))
	if !errors.Is(err, store.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertMapsUniqueViolation(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`insert into documents(collection, id, body)`)).
		WithArgs(store.Users, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := b.Collection(store.Users).Insert(context.Background(), store.Document{"email": "a@x.com"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpsertCreatesWithKeyField(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`select id, body from documents`)).
		WithArgs(store.Users, `{"email":"a@x.com"}`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`insert into documents(collection, id, body)`)).
		WithArgs(store.Users, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := b.Collection(store.Users).Upsert(context.Background(), store.ByField("email", "a@x.com"), store.Document{"name": "A"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.UpsertedID == "" || res.Matched != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpsertUnchangedSkipsWrite(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`select id, body from documents`)).
		WithArgs(store.Users, `{"email":"a@x.com"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).
			AddRow(validID, []byte(`{"_id":"`+validID+`","email":"a@x.com","name":"A"}`)))
	mock.ExpectCommit()

	res, err := b.Collection(store.Users).Upsert(context.Background(), store.ByField("email", "a@x.com"), store.Document{"name": "A"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res != (store.UpdateResult{Matched: 1}) {
		t.Fatalf("expected matched without modification, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateMergesPatch(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`select id, body from documents`)).
		WithArgs(store.Orders, validID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).
			AddRow(validID, []byte(`{"_id":"`+validID+`","shipment":"pending"}`)))
	mock.ExpectExec(regexp.QuoteMeta(`update documents set body = body || $3::jsonb`)).
		WithArgs(store.Orders, validID, `{"shipment":"shipped"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := b.Collection(store.Orders).Update(context.Background(), store.ByID(validID), store.Document{"shipment": "shipped"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res != (store.UpdateResult{Matched: 1, Modified: 1}) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateMissingDoesNotInsert(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`select id, body from documents`)).
		WithArgs(store.Orders, validID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	res, err := b.Collection(store.Orders).Update(context.Background(), store.ByID(validID), store.Document{"shipment": "shipped"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Matched != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteAndCount(t *testing.T) {
	b, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`delete from documents where collection = $1 and id = $2`)).
		WithArgs(store.Orders, validID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*) from documents`)).
		WithArgs(store.Orders, `{}`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	c := b.Collection(store.Orders)
	res, err := c.Delete(context.Background(), store.ByID(validID))
	if err != nil || res.Deleted != 1 {
		t.Fatalf("delete: %+v %v", res, err)
	}
	n, err := c.Count(context.Background(), nil)
	if err != nil || n != 7 {
		t.Fatalf("count: %d %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := Migrations()
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if len(names) != 4 || names[0] != "0001_documents.down.sql" {
		t.Fatalf("unexpected migrations: %v", names)
	}
}
