package database

// Schema creates the seat inventory tables. Every statement is idempotent.
//
// seat_allocations holds one row per occupied seat; its primary key is what
// stops two processes from allocating the same seat.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory_trips (
		id           TEXT PRIMARY KEY,
		route_ref    TEXT NOT NULL,
		vehicle_ref  TEXT NOT NULL,
		departure_at TIMESTAMPTZ NOT NULL,
		base_fare    NUMERIC(12,2) NOT NULL CHECK (base_fare > 0),
		published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_trip_seats (
		trip_id         TEXT NOT NULL REFERENCES inventory_trips(id) ON DELETE CASCADE,
		seat_code       TEXT NOT NULL,
		deck            TEXT NOT NULL CHECK (deck IN ('lower', 'upper')),
		position        TEXT NOT NULL CHECK (position IN ('left', 'right')),
		fare_multiplier NUMERIC(6,3) NOT NULL DEFAULT 1,
		ordinal         INTEGER NOT NULL,
		PRIMARY KEY (trip_id, seat_code)
	)`,
	`CREATE TABLE IF NOT EXISTS seat_holds (
		id          UUID PRIMARY KEY,
		trip_id     TEXT NOT NULL REFERENCES inventory_trips(id),
		seat_codes  TEXT[] NOT NULL,
		owner_token TEXT NOT NULL,
		amount      NUMERIC(12,2) NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('active', 'released', 'expired', 'consumed')),
		created_at  TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		closed_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seat_holds_active ON seat_holds (trip_id, expires_at) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS seat_bookings (
		id                UUID PRIMARY KEY,
		booking_reference TEXT NOT NULL UNIQUE,
		trip_id           TEXT NOT NULL REFERENCES inventory_trips(id),
		hold_id           UUID NOT NULL UNIQUE REFERENCES seat_holds(id),
		owner_token       TEXT NOT NULL,
		seat_codes        TEXT[] NOT NULL,
		passengers        JSONB NOT NULL,
		contact           JSONB NOT NULL,
		amount            NUMERIC(12,2) NOT NULL,
		currency          TEXT NOT NULL,
		payment_reference TEXT,
		status            TEXT NOT NULL CHECK (status IN ('confirmed', 'cancelled', 'completed')),
		created_at        TIMESTAMPTZ NOT NULL,
		cancelled_at      TIMESTAMPTZ,
		completed_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seat_bookings_trip ON seat_bookings (trip_id, status)`,
	`CREATE TABLE IF NOT EXISTS seat_allocations (
		trip_id    TEXT NOT NULL REFERENCES inventory_trips(id),
		seat_code  TEXT NOT NULL,
		kind       TEXT NOT NULL CHECK (kind IN ('hold', 'booking', 'block')),
		ref_id     UUID,
		expires_at TIMESTAMPTZ,
		reason     TEXT,
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (trip_id, seat_code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seat_allocations_ref ON seat_allocations (ref_id)`,
}
