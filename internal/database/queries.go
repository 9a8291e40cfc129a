package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"feedpipe/internal/domain"

	"github.com/google/uuid"
)

func (d *Database) AddFeed(ctx context.Context, feed domain.Feed) (*domain.Feed, error) {
	feed.URL = strings.TrimSpace(feed.URL)
	if feed.URL == "" {
		return nil, fmt.Errorf("%w: feed URL is empty", domain.ErrInvalidInput)
	}

	if !feed.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrInvalidInput, feed.Frequency)
	}

	feed.UserID = strings.TrimSpace(feed.UserID)
	if feed.UserID == "" {
		return nil, fmt.Errorf("%w: feed owner is empty", domain.ErrInvalidInput)
	}

	feed.ID = strings.TrimSpace(feed.ID)
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}

	feed.Title = strings.TrimSpace(feed.Title)
	feed.Description = strings.TrimSpace(feed.Description)
	feed.Tags = normalizeTags(feed.Tags)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin transaction", err)
	}
	defer d.rollback(ctx, tx, "AddFeed")

	query := `insert into feeds (id, url, frequency, user_id, title, description)
	values (?, ?, ?, ?, ?, ?)`

	if _, err = tx.ExecContext(
		ctx,
		query,
		feed.ID,
		feed.URL,
		string(feed.Frequency),
		feed.UserID,
		feed.Title,
		feed.Description,
	); err != nil {
		return nil, storageError("insert feed", err)
	}

	for _, tag := range feed.Tags {
		if _, err = tx.ExecContext(
			ctx,
			"insert or ignore into feed_tags (feed_id, tag) values (?, ?)",
			feed.ID,
			tag,
		); err != nil {
			return nil, storageError("insert feed tag", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, storageError("commit transaction", err)
	}

	return &feed, nil
}

// RemoveFeed deletes the feed together with its articles; the scheduler stops picking it up.
func (d *Database) RemoveFeed(ctx context.Context, feedID string) error {
	res, err := d.db.ExecContext(ctx, "delete from feeds where id = ?", feedID)
	if err != nil {
		return storageError("delete feed", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storageError("count deleted feeds", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: feed %q", domain.ErrNotFound, feedID)
	}

	return nil
}

func (d *Database) GetFeed(ctx context.Context, feedID string) (*domain.Feed, error) {
	query := `select id, url, frequency, user_id, title, description
	from feeds
	where id = ?`

	var (
		f         domain.Feed
		frequency string
	)

	err := d.db.QueryRowContext(ctx, query, feedID).Scan(
		&f.ID,
		&f.URL,
		&frequency,
		&f.UserID,
		&f.Title,
		&f.Description,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: feed %q", domain.ErrNotFound, feedID)
	}
	if err != nil {
		return nil, storageError("get feed", err)
	}

	f.Frequency = domain.Frequency(frequency)

	tags, err := d.feedTags(ctx, "where feed_id = ?", feedID)
	if err != nil {
		return nil, err
	}
	f.Tags = tags[f.ID]

	return &f, nil
}

func (d *Database) GetFeedsByFrequency(
	ctx context.Context,
	frequency domain.Frequency,
) ([]domain.Feed, error) {
	query := `select id, url, frequency, user_id, title, description
	from feeds
	where frequency = ?
	order by created_at, id`

	rows, err := d.db.QueryContext(ctx, query, string(frequency))
	if err != nil {
		return nil, storageError("query feeds", err)
	}
	defer d.closeRows(ctx, rows, "GetFeedsByFrequency")

	var feeds []domain.Feed
	for rows.Next() {
		var (
			f       domain.Feed
			rawFreq string
		)
		if err = rows.Scan(&f.ID, &f.URL, &rawFreq, &f.UserID, &f.Title, &f.Description); err != nil {
			return nil, storageError("scan feed", err)
		}

		f.URL = strings.TrimSpace(f.URL)
		f.Frequency = domain.Frequency(rawFreq)

		feeds = append(feeds, f)
	}

	if err = rows.Err(); err != nil {
		return nil, storageError("iterate feeds", err)
	}

	if len(feeds) == 0 {
		return feeds, nil
	}

	tags, err := d.feedTags(
		ctx,
		"where feed_id in (select id from feeds where frequency = ?)",
		string(frequency),
	)
	if err != nil {
		return nil, err
	}

	for i := range feeds {
		feeds[i].Tags = tags[feeds[i].ID]
	}

	return feeds, nil
}

func (d *Database) feedTags(ctx context.Context, where string, args ...any) (map[string][]string, error) {
	rows, err := d.db.QueryContext(ctx, "select feed_id, tag from feed_tags "+where+" order by tag", args...)
	if err != nil {
		return nil, storageError("query feed tags", err)
	}
	defer d.closeRows(ctx, rows, "feedTags")

	tags := make(map[string][]string)
	for rows.Next() {
		var feedID, tag string
		if err = rows.Scan(&feedID, &tag); err != nil {
			return nil, storageError("scan feed tag", err)
		}

		tags[feedID] = append(tags[feedID], tag)
	}

	if err = rows.Err(); err != nil {
		return nil, storageError("iterate feed tags", err)
	}

	return tags, nil
}

func normalizeTags(tags []string) []string {
	var normalized []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(normalized, tag) {
			continue
		}

		normalized = append(normalized, tag)
	}

	slices.Sort(normalized)

	return normalized
}
