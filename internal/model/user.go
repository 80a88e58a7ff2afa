package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are primarily used internally by the repository layer; handlers
// may define separate response types with appropriate JSON tags.
//
// Fields:
//  ID        – primary key identifier of the user.
//  Email     – unique email address.
//  Name      – display name (optional).
//  CreatedAt – timestamp of creation.
type User struct {
    ID        uint64    // users.id
    Email     string    // users.email
    Name      *string   // users.name (nullable)
    CreatedAt time.Time // users.created_at
}
