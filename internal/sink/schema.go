package sink

import (
	"github.com/jomei/notionapi"
)

// Role is a logical field of the message store. The schema maps each role to
// the actual remote property name, resolved once by introspection instead of
// hard-coding names: a pre-provisioned database may call its title property
// anything.
type Role string

const (
	RoleTitle      Role = "title"
	RoleText       Role = "text"
	RoleSender     Role = "sender"
	RoleChat       Role = "chat"
	RoleDate       Role = "date"
	RoleDirection  Role = "direction"
	RoleMessageID  Role = "message_id"
	RoleMedia      Role = "media"
	RoleChatID     Role = "chat_id"
	RoleTopicID    Role = "topic_id"
	RoleTopicTitle Role = "topic_title"
	RoleThreadID   Role = "thread_id"
)

// requiredRoles lists every role a repaired schema must carry, in the order
// reconciliation adds them.
var requiredRoles = []Role{
	RoleTitle, RoleText, RoleSender, RoleChat, RoleDate, RoleDirection,
	RoleMessageID, RoleMedia, RoleChatID, RoleTopicID, RoleTopicTitle, RoleThreadID,
}

// defaultNames are the property names used when a role has to be created.
var defaultNames = map[Role]string{
	RoleTitle:      "Message",
	RoleText:       "Full Text",
	RoleSender:     "Sender",
	RoleChat:       "Chat",
	RoleDate:       "Date",
	RoleDirection:  "Direction",
	RoleMessageID:  "Message ID",
	RoleMedia:      "Media Type",
	RoleChatID:     "Chat ID",
	RoleTopicID:    "Topic ID",
	RoleTopicTitle: "Topic",
	RoleThreadID:   "Thread ID",
}

// Schema is the resolved role→property-name mapping of one database.
type Schema struct {
	names map[Role]string
}

// resolveSchema introspects the database property set. The title role binds
// to whatever property has title type, regardless of its name; other roles
// bind to their default names when present.
func resolveSchema(db *notionapi.Database) *Schema {
	s := &Schema{names: make(map[Role]string)}
	for name, cfg := range db.Properties {
		if cfg != nil && cfg.GetType() == notionapi.PropertyConfigTypeTitle {
			s.names[RoleTitle] = name
			break
		}
	}
	for _, role := range requiredRoles {
		if role == RoleTitle {
			continue
		}
		def := defaultNames[role]
		if _, ok := db.Properties[def]; ok {
			s.names[role] = def
		}
	}
	return s
}

// Name returns the remote property name bound to a role, or its default when
// the role is unbound (only valid after reconciliation added it).
func (s *Schema) Name(role Role) string {
	if name, ok := s.names[role]; ok {
		return name
	}
	return defaultNames[role]
}

// Missing returns the roles the database lacks, in reconciliation order. The
// title role is missing only when no title-type property exists at all; an
// existing title property, whatever its name, is reused, never duplicated.
func (s *Schema) Missing() []Role {
	var missing []Role
	for _, role := range requiredRoles {
		if _, ok := s.names[role]; !ok {
			missing = append(missing, role)
		}
	}
	return missing
}

// bind records that a role now exists under its default name.
func (s *Schema) bind(role Role) {
	s.names[role] = defaultNames[role]
}

// propertyConfig returns the schema definition used to create a role's
// property. Direction is a fixed two-option select.
func propertyConfig(role Role) notionapi.PropertyConfig {
	switch role {
	case RoleTitle:
		return notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle}
	case RoleDate:
		return notionapi.DatePropertyConfig{Type: notionapi.PropertyConfigTypeDate}
	case RoleDirection:
		return notionapi.SelectPropertyConfig{
			Type: notionapi.PropertyConfigTypeSelect,
			Select: notionapi.Select{
				Options: []notionapi.Option{
					{Name: string(Incoming), Color: notionapi.ColorGreen},
					{Name: string(Outgoing), Color: notionapi.ColorBlue},
				},
			},
		}
	case RoleMessageID, RoleTopicID, RoleThreadID:
		return notionapi.NumberPropertyConfig{
			Type:   notionapi.PropertyConfigTypeNumber,
			Number: notionapi.NumberFormat{Format: notionapi.FormatNumber},
		}
	}
	return notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText}
}

// fullPropertySet is the complete schema used when provisioning a new
// database.
func fullPropertySet() notionapi.PropertyConfigs {
	props := make(notionapi.PropertyConfigs, len(requiredRoles))
	for _, role := range requiredRoles {
		props[defaultNames[role]] = propertyConfig(role)
	}
	return props
}
