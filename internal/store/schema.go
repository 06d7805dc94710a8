package store

// Schema is the current database schema as a single SQL script. Tests apply
// it directly to in-memory databases instead of running migrations. Keep in
// sync with the files under migrations/files.
const Schema = `
CREATE TABLE trust_records (
    guild_id     TEXT PRIMARY KEY,
    full_set     TEXT NOT NULL DEFAULT '[]',
    owner_set    TEXT NOT NULL DEFAULT '[]',
    role_set     TEXT NOT NULL DEFAULT '[]',
    channel_set  TEXT NOT NULL DEFAULT '[]',
    ban_kick_set TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE role_snapshots (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    color              INTEGER NOT NULL,
    position           INTEGER NOT NULL,
    permissions        INTEGER NOT NULL,
    hoist              INTEGER NOT NULL,
    mentionable        INTEGER NOT NULL,
    members            TEXT NOT NULL DEFAULT '[]',
    channel_overwrites TEXT NOT NULL DEFAULT '[]',
    captured_at        TIMESTAMP NOT NULL,
    capture_order      INTEGER NOT NULL
);

CREATE TABLE channel_snapshots (
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL,
    type                  INTEGER NOT NULL,
    parent_id             TEXT NOT NULL DEFAULT '',
    topic                 TEXT NOT NULL DEFAULT '',
    position              INTEGER NOT NULL,
    nsfw                  INTEGER NOT NULL,
    user_limit            INTEGER NOT NULL,
    permission_overwrites TEXT NOT NULL DEFAULT '[]',
    captured_at           TIMESTAMP NOT NULL,
    capture_order         INTEGER NOT NULL
);
`
