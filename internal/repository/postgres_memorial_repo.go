package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/soulishere/internal/model"
)

const memorialColumns = `id, user_id, first_name, last_name, birth_date, death_date,
	profile_picture, cover_picture, biography, life_summary, achievements, profession, website,
	youtube_videos, gallery_photos, family_members, life_events, guest_book_entries,
	status, payment_status, payment_id, payment_amount, paid_at, qr_generated, hug_count,
	created_at, updated_at`

const memorialColumnsQualified = `m.id, m.user_id, m.first_name, m.last_name, m.birth_date, m.death_date,
	m.profile_picture, m.cover_picture, m.biography, m.life_summary, m.achievements, m.profession, m.website,
	m.youtube_videos, m.gallery_photos, m.family_members, m.life_events, m.guest_book_entries,
	m.status, m.payment_status, m.payment_id, m.payment_amount, m.paid_at, m.qr_generated, m.hug_count,
	m.created_at, m.updated_at`

// PostgresMemorialRepo はPostgreSQLを使用したメモリアルリポジトリ。
// 1行を1ドキュメントとして扱い、すべての更新を単一のSQL文で行う。
type PostgresMemorialRepo struct {
	db *sql.DB
}

// NewPostgresMemorialRepo はPostgresMemorialRepoを生成する。
func NewPostgresMemorialRepo(db *sql.DB) *PostgresMemorialRepo {
	return &PostgresMemorialRepo{db: db}
}

// FindByID は指定IDのメモリアルを取得する。見つからない場合はnilを返す。
func (r *PostgresMemorialRepo) FindByID(ctx context.Context, id string) (*model.Memorial, error) {
	if !isUUID(id) {
		return nil, nil
	}
	m, err := scanMemorial(r.db.QueryRowContext(ctx,
		`SELECT `+memorialColumns+` FROM memorials WHERE id = $1`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find memorial: %w", err)
	}
	return m, nil
}

// FindByOwner は所有者のメモリアルを作成日時の降順で返す。
func (r *PostgresMemorialRepo) FindByOwner(ctx context.Context, userID string) ([]*model.Memorial, error) {
	if !isUUID(userID) {
		return nil, nil
	}
	return r.queryMemorials(ctx,
		`SELECT `+memorialColumns+` FROM memorials WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// FindDraftsByOwner は所有者の下書きを更新日時の降順で返す。
func (r *PostgresMemorialRepo) FindDraftsByOwner(ctx context.Context, userID string) ([]*model.Memorial, error) {
	if !isUUID(userID) {
		return nil, nil
	}
	return r.queryMemorials(ctx,
		`SELECT `+memorialColumns+` FROM memorials
		 WHERE user_id = $1 AND status = 'draft'
		 ORDER BY updated_at DESC`,
		userID,
	)
}

// FindPublishedSample は最も古い公開済みメモリアルを返す。
func (r *PostgresMemorialRepo) FindPublishedSample(ctx context.Context) (*model.Memorial, error) {
	m, err := scanMemorial(r.db.QueryRowContext(ctx,
		`SELECT `+memorialColumns+` FROM memorials
		 WHERE status = 'published'
		 ORDER BY created_at ASC
		 LIMIT 1`,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find sample memorial: %w", err)
	}
	return m, nil
}

// Create はメモリアルを作成する。
func (r *PostgresMemorialRepo) Create(ctx context.Context, m *model.Memorial) error {
	videos, photos, family, events, entries, err := marshalCollections(m)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO memorials (
		    id, user_id, first_name, last_name, birth_date, death_date,
		    profile_picture, cover_picture, biography, life_summary, achievements, profession, website,
		    youtube_videos, gallery_photos, family_members, life_events, guest_book_entries,
		    status, payment_status, payment_id, payment_amount, paid_at, qr_generated, hug_count,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		         $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		m.ID, m.UserID, m.FirstName, m.LastName, m.BirthDate, m.DeathDate,
		m.ProfilePicture, m.CoverPicture, m.Biography, m.LifeSummary, m.Achievements, m.Profession, m.Website,
		videos, photos, family, events, entries,
		m.Status, m.PaymentStatus, nullString(m.PaymentID), nullInt64(m.PaymentAmount), nullTime(m.PaidAt),
		m.QRGenerated, m.HugCount,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create memorial: %w", err)
	}
	return nil
}

// UpdateFields はpatchの非nilフィールドのみを1文で更新する。
func (r *PostgresMemorialRepo) UpdateFields(ctx context.Context, id string, patch *model.MemorialPatch, now time.Time) (*model.Memorial, error) {
	if !isUUID(id) {
		return nil, nil
	}

	var sets []string
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	setJSON := func(column string, value any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", column, err)
		}
		args = append(args, raw)
		sets = append(sets, fmt.Sprintf("%s = $%d::jsonb", column, len(args)))
		return nil
	}

	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.BirthDate != nil {
		set("birth_date", *patch.BirthDate)
	}
	if patch.DeathDate != nil {
		set("death_date", *patch.DeathDate)
	}
	if patch.ProfilePicture != nil {
		set("profile_picture", *patch.ProfilePicture)
	}
	if patch.CoverPicture != nil {
		set("cover_picture", *patch.CoverPicture)
	}
	if patch.Biography != nil {
		set("biography", *patch.Biography)
	}
	if patch.LifeSummary != nil {
		set("life_summary", *patch.LifeSummary)
	}
	if patch.Achievements != nil {
		set("achievements", *patch.Achievements)
	}
	if patch.Profession != nil {
		set("profession", *patch.Profession)
	}
	if patch.Website != nil {
		set("website", *patch.Website)
	}
	if patch.YoutubeVideos != nil {
		if err := setJSON("youtube_videos", nonNil(*patch.YoutubeVideos)); err != nil {
			return nil, err
		}
	}
	if patch.GalleryPhotos != nil {
		if err := setJSON("gallery_photos", nonNil(*patch.GalleryPhotos)); err != nil {
			return nil, err
		}
	}
	if patch.FamilyMembers != nil {
		if err := setJSON("family_members", nonNil(*patch.FamilyMembers)); err != nil {
			return nil, err
		}
	}
	if patch.LifeEvents != nil {
		if err := setJSON("life_events", nonNil(*patch.LifeEvents)); err != nil {
			return nil, err
		}
	}
	set("updated_at", now)

	query := `UPDATE memorials SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + memorialColumns

	m, err := scanMemorial(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update memorial: %w", err)
	}
	return m, nil
}

// Publish は下書きを公開状態へ遷移させる。status='draft' を条件とした単一のUPDATEで行う。
func (r *PostgresMemorialRepo) Publish(ctx context.Context, id string, params model.PublishParams) (*model.Memorial, error) {
	if !isUUID(id) {
		return nil, nil
	}

	m, err := scanMemorial(r.db.QueryRowContext(ctx,
		`UPDATE memorials SET
		    status = 'published',
		    payment_status = 'completed',
		    payment_id = $2,
		    payment_amount = $3,
		    paid_at = $4,
		    updated_at = $4
		 WHERE id = $1 AND status = 'draft'
		 RETURNING `+memorialColumns,
		id, params.PaymentID, params.PaymentAmount, params.PaidAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to publish memorial: %w", err)
	}
	if m != nil {
		return m, nil
	}

	found, published, err := r.statusOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if found && published {
		return nil, ErrAlreadyPublished
	}
	return nil, nil
}

// SetQRGenerated はQRコード生成フラグを有効にする。
func (r *PostgresMemorialRepo) SetQRGenerated(ctx context.Context, id string, now time.Time) (*model.Memorial, error) {
	if !isUUID(id) {
		return nil, nil
	}
	m, err := scanMemorial(r.db.QueryRowContext(ctx,
		`UPDATE memorials SET qr_generated = true, updated_at = $2
		 WHERE id = $1
		 RETURNING `+memorialColumns,
		id, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to enable QR code: %w", err)
	}
	return m, nil
}

// AppendGuestbookEntry はJSONB配列への連結でエントリを追記する。
// 公開済みであることをWHERE句で保証するため、並行する追記は失われない。
func (r *PostgresMemorialRepo) AppendGuestbookEntry(ctx context.Context, id string, entry model.GuestbookEntry) ([]model.GuestbookEntry, error) {
	if !isUUID(id) {
		return nil, nil
	}

	raw, err := json.Marshal([]model.GuestbookEntry{entry})
	if err != nil {
		return nil, fmt.Errorf("failed to encode guestbook entry: %w", err)
	}

	var entriesJSON []byte
	err = r.db.QueryRowContext(ctx,
		`UPDATE memorials SET
		    guest_book_entries = guest_book_entries || $2::jsonb,
		    updated_at = $3
		 WHERE id = $1 AND status = 'published'
		 RETURNING guest_book_entries`,
		id, raw, entry.Date,
	).Scan(&entriesJSON)
	if err == sql.ErrNoRows {
		found, _, statusErr := r.statusOf(ctx, id)
		if statusErr != nil {
			return nil, statusErr
		}
		if found {
			return nil, ErrNotPublished
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append guestbook entry: %w", err)
	}

	var entries []model.GuestbookEntry
	if err := json.Unmarshal(entriesJSON, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode guestbook entries: %w", err)
	}
	return entries, nil
}

// IncrementHug はハグ数を1文で加算し、加算後の値を返す。
func (r *PostgresMemorialRepo) IncrementHug(ctx context.Context, id string) (int64, bool, error) {
	if !isUUID(id) {
		return 0, false, nil
	}

	var count int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE memorials SET hug_count = hug_count + 1, updated_at = now()
		 WHERE id = $1 AND status = 'published'
		 RETURNING hug_count`,
		id,
	).Scan(&count)
	if err == sql.ErrNoRows {
		found, _, statusErr := r.statusOf(ctx, id)
		if statusErr != nil {
			return 0, false, statusErr
		}
		if found {
			return 0, true, ErrNotPublished
		}
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment hug count: %w", err)
	}
	return count, true, nil
}

// Delete はメモリアルを削除する。
func (r *PostgresMemorialRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM memorials WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete memorial: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// FindAll は全メモリアルを所有者の名前・メールアドレス付きで返す。
func (r *PostgresMemorialRepo) FindAll(ctx context.Context) ([]*model.MemorialWithOwner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memorialColumnsQualified+`, u.name, u.email
		 FROM memorials m
		 INNER JOIN users u ON u.id = m.user_id
		 ORDER BY m.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memorials: %w", err)
	}
	defer rows.Close()

	var result []*model.MemorialWithOwner
	for rows.Next() {
		item := &model.MemorialWithOwner{}
		if err := scanMemorialInto(rows, &item.Memorial, &item.OwnerName, &item.OwnerEmail); err != nil {
			return nil, fmt.Errorf("failed to scan memorial: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memorials: %w", err)
	}
	return result, nil
}

// Stats はメモリアル件数と支払い完了分の売上合計を集計する。
func (r *PostgresMemorialRepo) Stats(ctx context.Context) (*model.MemorialStats, error) {
	stats := &model.MemorialStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'published'),
		        count(*) FILTER (WHERE status = 'draft'),
		        COALESCE(SUM(payment_amount) FILTER (WHERE payment_status = 'completed'), 0)
		 FROM memorials`,
	).Scan(&stats.TotalMemorials, &stats.PublishedMemorials, &stats.DraftMemorials, &stats.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("failed to get memorial stats: %w", err)
	}
	return stats, nil
}

// statusOf は条件付き更新が0件だった場合に、存在しないのか状態が違うのかを判定する。
func (r *PostgresMemorialRepo) statusOf(ctx context.Context, id string) (found, published bool, err error) {
	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM memorials WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to get memorial status: %w", err)
	}
	return true, model.MemorialStatus(status) == model.MemorialStatusPublished, nil
}

func (r *PostgresMemorialRepo) queryMemorials(ctx context.Context, query string, args ...any) ([]*model.Memorial, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memorials: %w", err)
	}
	defer rows.Close()

	var memorials []*model.Memorial
	for rows.Next() {
		m := &model.Memorial{}
		if err := scanMemorialInto(rows, m); err != nil {
			return nil, fmt.Errorf("failed to scan memorial: %w", err)
		}
		memorials = append(memorials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memorials: %w", err)
	}
	return memorials, nil
}

// scanMemorial は1行をMemorialに変換する。行が存在しない場合は(nil, nil)を返す。
func scanMemorial(row rowScanner) (*model.Memorial, error) {
	m := &model.Memorial{}
	err := scanMemorialInto(row, m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// scanMemorialInto はmemorialColumnsの順に読み取り、extraを末尾の追加カラムとして読み取る。
func scanMemorialInto(row rowScanner, m *model.Memorial, extra ...any) error {
	var paymentID sql.NullString
	var paymentAmount sql.NullInt64
	var paidAt sql.NullTime
	var videos, photos, family, events, entries []byte

	dest := []any{
		&m.ID, &m.UserID, &m.FirstName, &m.LastName, &m.BirthDate, &m.DeathDate,
		&m.ProfilePicture, &m.CoverPicture, &m.Biography, &m.LifeSummary, &m.Achievements, &m.Profession, &m.Website,
		&videos, &photos, &family, &events, &entries,
		&m.Status, &m.PaymentStatus, &paymentID, &paymentAmount, &paidAt, &m.QRGenerated, &m.HugCount,
		&m.CreatedAt, &m.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	m.PaymentID = nullStringValue(paymentID)
	if paymentAmount.Valid {
		amount := paymentAmount.Int64
		m.PaymentAmount = &amount
	}
	if paidAt.Valid {
		t := paidAt.Time
		m.PaidAt = &t
	}

	for _, c := range []struct {
		raw  []byte
		dest any
	}{
		{videos, &m.YoutubeVideos},
		{photos, &m.GalleryPhotos},
		{family, &m.FamilyMembers},
		{events, &m.LifeEvents},
		{entries, &m.GuestBookEntries},
	} {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dest); err != nil {
			return fmt.Errorf("failed to decode embedded collection: %w", err)
		}
	}
	return nil
}

func marshalCollections(m *model.Memorial) (videos, photos, family, events, entries []byte, err error) {
	if videos, err = json.Marshal(nonNil(m.YoutubeVideos)); err != nil {
		return
	}
	if photos, err = json.Marshal(nonNil(m.GalleryPhotos)); err != nil {
		return
	}
	if family, err = json.Marshal(nonNil(m.FamilyMembers)); err != nil {
		return
	}
	if events, err = json.Marshal(nonNil(m.LifeEvents)); err != nil {
		return
	}
	if entries, err = json.Marshal(nonNil(m.GuestBookEntries)); err != nil {
		return
	}
	return
}

// nonNil はnilスライスを空スライスに置き換える。
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

// isUUID はIDがUUID形式かを返す。形式外のIDは存在しないものとして扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// compile-time interface check
var _ MemorialRepository = (*PostgresMemorialRepo)(nil)
