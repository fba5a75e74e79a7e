package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrSeriesExists is returned by BackfillNetworkStats when network samples are already stored.
	ErrSeriesExists = errors.New("storage: network stats already present")
)

const (
	countNetworkStatsSQL = `SELECT COUNT(*) FROM network_stats;`

	listChannelHistorySQL = `SELECT capacity, created, closing_date
    FROM channels
    ORDER BY created ASC;`

	listNodeFirstSeenSQL = `SELECT first_seen FROM nodes ORDER BY first_seen ASC;`

	insertNetworkStatsSQL = `INSERT INTO network_stats (
        added,
        channel_count,
        node_count,
        total_capacity
    ) VALUES ($1,$2,$3,$4);`

	updateNetworkStatsNodeCountSQL = `UPDATE network_stats
    SET node_count = $2
    WHERE added = $1;`

	hasNetworkStatsBetweenSQL = `SELECT EXISTS (
        SELECT 1 FROM network_stats WHERE added >= $1 AND added < $2
    );`

	listNodeAggregatesSQL = `SELECT
        nodes.public_key,
        COALESCE(c1.channels_count_left, 0),
        COALESCE(c2.channels_count_right, 0),
        COALESCE(c1.channels_capacity_left, 0),
        COALESCE(c2.channels_capacity_right, 0)
    FROM nodes
    LEFT JOIN (
        SELECT node1_public_key, COUNT(id) AS channels_count_left, SUM(capacity)::BIGINT AS channels_capacity_left
        FROM channels
        WHERE channels.status < $1
        GROUP BY node1_public_key
    ) c1 ON c1.node1_public_key = nodes.public_key
    LEFT JOIN (
        SELECT node2_public_key, COUNT(id) AS channels_count_right, SUM(capacity)::BIGINT AS channels_capacity_right
        FROM channels
        WHERE channels.status < $1
        GROUP BY node2_public_key
    ) c2 ON c2.node2_public_key = nodes.public_key
    ORDER BY nodes.public_key;`

	channelColumns = `id,
        node1_public_key,
        node2_public_key,
        capacity,
        created,
        closing_date,
        status,
        COALESCE(node1_fee_rate, 0),
        COALESCE(node2_fee_rate, 0),
        COALESCE(node1_base_fee_mtokens, 0),
        COALESCE(node2_base_fee_mtokens, 0)`

	listChannelsForNodeSQL = `SELECT ` + channelColumns + `
    FROM channels
    WHERE node1_public_key = $1 OR node2_public_key = $1;`

	upsertChannelSQL = `INSERT INTO channels (
        id,
        node1_public_key,
        node2_public_key,
        capacity,
        created,
        closing_date,
        status,
        node1_fee_rate,
        node2_fee_rate,
        node1_base_fee_mtokens,
        node2_base_fee_mtokens
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (id) DO UPDATE
    SET
        capacity               = EXCLUDED.capacity,
        closing_date           = EXCLUDED.closing_date,
        status                 = EXCLUDED.status,
        node1_fee_rate         = EXCLUDED.node1_fee_rate,
        node2_fee_rate         = EXCLUDED.node2_fee_rate,
        node1_base_fee_mtokens = EXCLUDED.node1_base_fee_mtokens,
        node2_base_fee_mtokens = EXCLUDED.node2_base_fee_mtokens;`

	upsertNodeSQL = `INSERT INTO nodes (
        public_key,
        alias,
        latitude,
        longitude,
        first_seen
    ) VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (public_key) DO UPDATE
    SET alias     = EXCLUDED.alias,
        latitude  = COALESCE(EXCLUDED.latitude, nodes.latitude),
        longitude = COALESCE(EXCLUDED.longitude, nodes.longitude);`

	closeMissingChannelsSQL = `UPDATE channels
    SET status = $1,
        closing_date = $2
    WHERE status < $3
      AND NOT (id = ANY($4));`

	getNodeSQL = `SELECT public_key, alias, latitude, longitude, first_seen
    FROM nodes
    WHERE public_key = $1;`

	insertNodeStatsSQL = `INSERT INTO node_stats (
        public_key,
        added,
        capacity,
        channels,
        avg_fee_rate,
        avg_base_fee_mtokens,
        med_capacity,
        med_fee_rate,
        med_base_fee_mtokens,
        fee_rate_distribution
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    );`

	listNodeStatsSQL = `SELECT
        public_key,
        added,
        capacity,
        channels,
        avg_fee_rate::TEXT,
        avg_base_fee_mtokens::TEXT,
        med_capacity,
        med_fee_rate,
        med_base_fee_mtokens,
        fee_rate_distribution
    FROM node_stats
    WHERE public_key = $1
    ORDER BY added DESC
    LIMIT $2;`

	topNodesByCapacitySQL = `SELECT n.public_key, n.alias, n.latitude, n.longitude, n.first_seen,
        s.capacity, s.channels, s.added
    FROM (
        SELECT DISTINCT ON (public_key) public_key, capacity, channels, added
        FROM node_stats
        ORDER BY public_key, added DESC
    ) s
    JOIN nodes n ON n.public_key = s.public_key
    ORDER BY s.capacity DESC
    LIMIT $1;`

	topNodesByChannelsSQL = `SELECT n.public_key, n.alias, n.latitude, n.longitude, n.first_seen,
        s.capacity, s.channels, s.added
    FROM (
        SELECT DISTINCT ON (public_key) public_key, capacity, channels, added
        FROM node_stats
        ORDER BY public_key, added DESC
    ) s
    JOIN nodes n ON n.public_key = s.public_key
    ORDER BY s.channels DESC
    LIMIT $1;`

	networkStatsColumns = `added, channel_count, node_count, total_capacity`

	listRecentNetworkStatsSQL = `SELECT ` + networkStatsColumns + `
    FROM network_stats
    ORDER BY added DESC
    LIMIT $1;`

	listNetworkStatsBetweenSQL = `SELECT ` + networkStatsColumns + `
    FROM network_stats
    WHERE added >= $1
      AND added < $2
    ORDER BY added;`

	getStateSQL = `SELECT string FROM state WHERE name = $1;`

	setStateSQL = `INSERT INTO state (name, string) VALUES ($1, $2)
    ON CONFLICT (name) DO UPDATE SET string = EXCLUDED.string;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TopOrder selects the ranking used by TopNodes.
type TopOrder string

const (
	TopByCapacity TopOrder = "capacity"
	TopByChannels TopOrder = "channels"
)

// NetworkStatsStore covers network-wide time series persistence.
type NetworkStatsStore interface {
	CountNetworkStats(ctx context.Context) (int64, error)
	ListChannelHistory(ctx context.Context) ([]ChannelHistory, error)
	ListNodeFirstSeen(ctx context.Context) ([]time.Time, error)
	InsertNetworkStats(ctx context.Context, sample NetworkStatsSample) error
	BackfillNetworkStats(ctx context.Context, series []NetworkStatsSample, nodeCounts []NodeCountUpdate) error
	HasNetworkStatsOn(ctx context.Context, day time.Time) (bool, error)
}

// GraphStore mirrors the live gossip graph into the nodes and channels tables.
type GraphStore interface {
	SyncGraph(ctx context.Context, nodes []Node, channels []Channel, at time.Time) (closed int64, err error)
}

// NodeStatsStore covers per-node statistics persistence.
type NodeStatsStore interface {
	ListNodeAggregates(ctx context.Context) ([]NodeAggregate, error)
	ListChannelsForNode(ctx context.Context, publicKey string) ([]Channel, error)
	InsertNodeStats(ctx context.Context, sample NodeStatsSample) error
}

// StateStore persists named idempotency markers.
type StateStore interface {
	GetState(ctx context.Context, name string) (string, error)
	SetState(ctx context.Context, name, value string) error
}

// StatsStore is everything the aggregation tasks need.
type StatsStore interface {
	GraphStore
	NetworkStatsStore
	NodeStatsStore
	StateStore
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store provides PostgreSQL access to the graph and statistics tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock is dropped with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// CountNetworkStats counts stored network samples.
func (s *Store) CountNetworkStats(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countNetworkStatsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count network stats: %w", scanErr)
	}
	return count, nil
}

// ListChannelHistory loads every channel's capacity and lifetime ordered by creation.
func (s *Store) ListChannelHistory(ctx context.Context) ([]ChannelHistory, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listChannelHistorySQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list channel history: %w", queryErr)
	}
	defer rows.Close()

	history := make([]ChannelHistory, 0)
	for rows.Next() {
		var ch ChannelHistory
		if err := rows.Scan(&ch.Capacity, &ch.Created, &ch.ClosingDate); err != nil {
			return nil, fmt.Errorf("scan channel history: %w", err)
		}
		history = append(history, ch)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return history, nil
}

// ListNodeFirstSeen returns first_seen for every node in ascending order.
func (s *Store) ListNodeFirstSeen(ctx context.Context) ([]time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNodeFirstSeenSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list node first seen: %w", queryErr)
	}
	defer rows.Close()

	seen := make([]time.Time, 0)
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan node first seen: %w", err)
		}
		seen = append(seen, ts)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return seen, nil
}

// InsertNetworkStats appends one network sample.
func (s *Store) InsertNetworkStats(ctx context.Context, sample NetworkStatsSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertNetworkStatsSQL,
		sample.Added,
		sample.ChannelCount,
		sample.NodeCount,
		sample.TotalCapacity,
	); execErr != nil {
		return fmt.Errorf("insert network stats: %w", execErr)
	}
	return nil
}

// BackfillNetworkStats writes a rebuilt series in one transaction: every
// sample is inserted, then node counts are applied by exact added timestamp.
// Either the whole series is stored or nothing is.
func (s *Store) BackfillNetworkStats(ctx context.Context, series []NetworkStatsSample, nodeCounts []NodeCountUpdate) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin backfill: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(ctx)
	}()

	var existing int64
	if scanErr := tx.QueryRow(ctx, countNetworkStatsSQL).Scan(&existing); scanErr != nil {
		return fmt.Errorf("count network stats: %w", scanErr)
	}
	if existing > 0 {
		return ErrSeriesExists
	}

	inserts := &pgx.Batch{}
	for _, sample := range series {
		inserts.Queue(insertNetworkStatsSQL,
			sample.Added,
			sample.ChannelCount,
			sample.NodeCount,
			sample.TotalCapacity,
		)
	}
	if err := execBatch(ctx, tx, inserts, func(int, pgconn.CommandTag) error { return nil }); err != nil {
		return fmt.Errorf("insert network stats: %w", err)
	}

	updates := &pgx.Batch{}
	for _, u := range nodeCounts {
		updates.Queue(updateNetworkStatsNodeCountSQL, u.Added, u.NodeCount)
	}
	if err := execBatch(ctx, tx, updates, func(i int, tag pgconn.CommandTag) error {
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("no sample for %s: %w", DateKey(nodeCounts[i].Added), pgx.ErrNoRows)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update network stats node count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit backfill: %w", err)
	}
	return nil
}

// HasNetworkStatsOn reports whether a sample exists for the UTC day containing day.
func (s *Store) HasNetworkStatsOn(ctx context.Context, day time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	start := DayStart(day)
	var exists bool
	if scanErr := pool.QueryRow(ctx, hasNetworkStatsBetweenSQL, start, start.AddDate(0, 0, 1)).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("check network stats day: %w", scanErr)
	}
	return exists, nil
}

// ListNodeAggregates returns every node with its open-channel counts and capacity per side.
func (s *Store) ListNodeAggregates(ctx context.Context) ([]NodeAggregate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNodeAggregatesSQL, int16(ChannelClosing))
	if queryErr != nil {
		return nil, fmt.Errorf("list node aggregates: %w", queryErr)
	}
	defer rows.Close()

	aggregates := make([]NodeAggregate, 0)
	for rows.Next() {
		var agg NodeAggregate
		if err := rows.Scan(
			&agg.PublicKey,
			&agg.CountLeft,
			&agg.CountRight,
			&agg.CapacityLeft,
			&agg.CapacityRight,
		); err != nil {
			return nil, fmt.Errorf("scan node aggregate: %w", err)
		}
		aggregates = append(aggregates, agg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return aggregates, nil
}

// ListChannelsForNode returns every channel, open or closed, with the node at either end.
func (s *Store) ListChannelsForNode(ctx context.Context, publicKey string) ([]Channel, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listChannelsForNodeSQL, publicKey)
	if queryErr != nil {
		return nil, fmt.Errorf("list channels for node: %w", queryErr)
	}
	defer rows.Close()

	channels := make([]Channel, 0)
	for rows.Next() {
		ch, scanErr := scanChannel(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		channels = append(channels, ch)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return channels, nil
}

// SyncGraph upserts the given nodes and channels in one transaction and marks
// every open channel missing from channels as closed at at. New rows take at
// as first_seen or created; existing rows keep theirs.
func (s *Store) SyncGraph(ctx context.Context, nodes []Node, channels []Channel, at time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin graph sync: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, node := range nodes {
		firstSeen := node.FirstSeen
		if firstSeen.IsZero() {
			firstSeen = at
		}
		batch.Queue(upsertNodeSQL,
			node.PublicKey,
			node.Alias,
			node.Latitude,
			node.Longitude,
			firstSeen,
		)
	}
	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		created := ch.Created
		if created.IsZero() {
			created = at
		}
		batch.Queue(upsertChannelSQL,
			ch.ID,
			ch.Node1PublicKey,
			ch.Node2PublicKey,
			ch.Capacity,
			created,
			ch.ClosingDate,
			int16(ch.Status),
			ch.Node1FeeRate,
			ch.Node2FeeRate,
			ch.Node1BaseFee,
			ch.Node2BaseFee,
		)
		ids = append(ids, ch.ID)
	}
	if err := execBatch(ctx, tx, batch, func(int, pgconn.CommandTag) error { return nil }); err != nil {
		return 0, fmt.Errorf("upsert graph: %w", err)
	}

	// an empty graph never closes anything
	var closed int64
	if len(ids) > 0 {
		tag, err := tx.Exec(ctx, closeMissingChannelsSQL, int16(ChannelClosed), at, int16(ChannelClosing), ids)
		if err != nil {
			return 0, fmt.Errorf("close missing channels: %w", err)
		}
		closed = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit graph sync: %w", err)
	}
	return closed, nil
}

// GetNode loads a node by public key.
func (s *Store) GetNode(ctx context.Context, publicKey string) (Node, error) {
	pool, err := s.getPool()
	if err != nil {
		return Node{}, err
	}
	var node Node
	if scanErr := pool.QueryRow(ctx, getNodeSQL, publicKey).Scan(
		&node.PublicKey,
		&node.Alias,
		&node.Latitude,
		&node.Longitude,
		&node.FirstSeen,
	); scanErr != nil {
		return Node{}, fmt.Errorf("get node %s: %w", publicKey, scanErr)
	}
	return node, nil
}

// InsertNodeStats appends one per-node sample.
func (s *Store) InsertNodeStats(ctx context.Context, sample NodeStatsSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	distribution := sample.FeeRateDistribution
	if distribution == nil {
		distribution = []int64{}
	}

	if _, execErr := pool.Exec(ctx, insertNodeStatsSQL,
		sample.PublicKey,
		sample.Added,
		sample.Capacity,
		sample.Channels,
		sample.AvgFeeRate.String(),
		sample.AvgBaseFee.String(),
		sample.MedCapacity,
		sample.MedFeeRate,
		sample.MedBaseFee,
		distribution,
	); execErr != nil {
		return fmt.Errorf("insert node stats: %w", execErr)
	}
	return nil
}

// ListNodeStats lists a node's samples, newest first.
func (s *Store) ListNodeStats(ctx context.Context, publicKey string, limit int) ([]NodeStatsSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNodeStatsSQL, publicKey, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list node stats: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]NodeStatsSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanNodeStats(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// TopNodes ranks nodes by their latest sample.
func (s *Store) TopNodes(ctx context.Context, order TopOrder, limit int) ([]RankedNode, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := topNodesByCapacitySQL
	switch order {
	case TopByCapacity, "":
	case TopByChannels:
		query = topNodesByChannelsSQL
	default:
		return nil, fmt.Errorf("unsupported top order %q", order)
	}

	rows, queryErr := pool.Query(ctx, query, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("top nodes: %w", queryErr)
	}
	defer rows.Close()

	ranked := make([]RankedNode, 0, limit)
	for rows.Next() {
		var rn RankedNode
		if err := rows.Scan(
			&rn.Node.PublicKey,
			&rn.Node.Alias,
			&rn.Node.Latitude,
			&rn.Node.Longitude,
			&rn.Node.FirstSeen,
			&rn.Capacity,
			&rn.Channels,
			&rn.Added,
		); err != nil {
			return nil, fmt.Errorf("scan ranked node: %w", err)
		}
		ranked = append(ranked, rn)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ranked, nil
}

// ListRecentNetworkStats lists the most recent network samples, newest first.
func (s *Store) ListRecentNetworkStats(ctx context.Context, limit int) ([]NetworkStatsSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNetworkStatsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent network stats: %w", queryErr)
	}
	defer rows.Close()

	return collectNetworkStats(rows, limit)
}

// ListNetworkStatsBetween lists samples within [from, to).
func (s *Store) ListNetworkStatsBetween(ctx context.Context, from, to time.Time) ([]NetworkStatsSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNetworkStatsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list network stats between: %w", queryErr)
	}
	defer rows.Close()

	return collectNetworkStats(rows, 0)
}

// GetState returns the marker stored under name, or "" when unset.
func (s *Store) GetState(ctx context.Context, name string) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}
	var value sql.NullString
	scanErr := pool.QueryRow(ctx, getStateSQL, name).Scan(&value)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return "", nil
	}
	if scanErr != nil {
		return "", fmt.Errorf("get state %s: %w", name, scanErr)
	}
	return value.String, nil
}

// SetState stores a marker value.
func (s *Store) SetState(ctx context.Context, name, value string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, setStateSQL, name, value); execErr != nil {
		return fmt.Errorf("set state %s: %w", name, execErr)
	}
	return nil
}

// execBatch sends batch on tx and hands every command tag to check in queue order.
func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, check func(i int, tag pgconn.CommandTag) error) error {
	if batch.Len() == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err == nil {
			err = check(i, tag)
		}
		if err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func collectNetworkStats(rows pgx.Rows, capacity int) ([]NetworkStatsSample, error) {
	samples := make([]NetworkStatsSample, 0, capacity)
	for rows.Next() {
		var sample NetworkStatsSample
		if err := rows.Scan(
			&sample.Added,
			&sample.ChannelCount,
			&sample.NodeCount,
			&sample.TotalCapacity,
		); err != nil {
			return nil, fmt.Errorf("scan network stats: %w", err)
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanChannel(rows pgx.Rows) (Channel, error) {
	var (
		ch     Channel
		status int16
	)
	if err := rows.Scan(
		&ch.ID,
		&ch.Node1PublicKey,
		&ch.Node2PublicKey,
		&ch.Capacity,
		&ch.Created,
		&ch.ClosingDate,
		&status,
		&ch.Node1FeeRate,
		&ch.Node2FeeRate,
		&ch.Node1BaseFee,
		&ch.Node2BaseFee,
	); err != nil {
		return Channel{}, fmt.Errorf("scan channel: %w", err)
	}
	ch.Status = ChannelStatus(status)
	return ch, nil
}

func scanNodeStats(rows pgx.Rows) (NodeStatsSample, error) {
	var (
		sample        NodeStatsSample
		avgFeeRateStr string
		avgBaseFeeStr string
	)
	if err := rows.Scan(
		&sample.PublicKey,
		&sample.Added,
		&sample.Capacity,
		&sample.Channels,
		&avgFeeRateStr,
		&avgBaseFeeStr,
		&sample.MedCapacity,
		&sample.MedFeeRate,
		&sample.MedBaseFee,
		&sample.FeeRateDistribution,
	); err != nil {
		return NodeStatsSample{}, fmt.Errorf("scan node stats: %w", err)
	}

	var err error
	sample.AvgFeeRate, err = decimal.NewFromString(avgFeeRateStr)
	if err != nil {
		return NodeStatsSample{}, fmt.Errorf("parse avg fee rate: %w", err)
	}
	sample.AvgBaseFee, err = decimal.NewFromString(avgBaseFeeStr)
	if err != nil {
		return NodeStatsSample{}, fmt.Errorf("parse avg base fee: %w", err)
	}
	return sample, nil
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats t as the UTC calendar date used by markers.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
