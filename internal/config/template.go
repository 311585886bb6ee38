package config

// Template is the starting configuration written by `timekeeper init`.
const Template = `# timekeeper configuration
#
# backend: matrix stores everything in rooms on a Matrix homeserver,
# sqlite keeps the same records in a local database file.
backend: sqlite

# The space (matrix) or namespace (sqlite) the channels are created in.
guild: "my-guild"

# Zone used for day boundaries and for old records without an offset.
timezone: "Local"

matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@timekeeper:example.org"
  access_token: "${TIMEKEEPER_MATRIX_TOKEN}"

database:
  path: "./timekeeper.db"

channels:
  category: "Timekeeper"
  dashboard: "dashboard"
  timeline: "timeline"
  goals: "goals"
  report: "report"
  data: "timekeeper-data"

limits:
  today: 50
  progress: 500
  report: 1000
  purge: 100

defaults:
  tasks:
    - name: "Study"
      style: "primary"
    - name: "Work"
      style: "success"

dedupe:
  ttl: "10m"
  max_size: 1000

bridge:
  command_prefix: "!"
  allowed_rooms: []
  allowed_users: []

logging:
  level: "info"
  format: "text"
  file: ""

metrics:
  enabled: false
  listen_addr: "127.0.0.1:9464"
  path: "/metrics"
`
