// Package command defines the wire command-code table and an in-process
// dispatcher from code to handler. Grounded on
// original_source/sdk/src/command.rs for the authoritative numeric table
// (resolves the spec's command-code Open Question) and vaultaire's
// internal/api/server.go route-registration style, narrowed from HTTP verb
// routing to a code->handler table since commands here arrive as framed
// binary requests, not HTTP requests.
package command

// Code is a wire command identifier.
type Code uint32

const (
	Ping Code = 1

	GetStats Code = 10

	GetMe      Code = 20
	GetClient  Code = 21
	GetClients Code = 22

	GetUser            Code = 31
	GetUsers           Code = 32
	CreateUser         Code = 33
	DeleteUser         Code = 34
	UpdateUser         Code = 35
	UpdatePermissions  Code = 36
	ChangePassword     Code = 37
	LoginUser          Code = 38
	LogoutUser         Code = 39

	GetPersonalAccessTokens        Code = 41
	CreatePersonalAccessToken      Code = 42
	DeletePersonalAccessToken      Code = 43
	LoginWithPersonalAccessToken   Code = 44

	PollMessages        Code = 100
	SendMessages        Code = 101
	FlushUnsavedBuffer  Code = 102

	GetConsumerOffset   Code = 120
	StoreConsumerOffset Code = 121

	GetStream    Code = 200
	GetStreams   Code = 201
	CreateStream Code = 202
	DeleteStream Code = 203
	UpdateStream Code = 204
	PurgeStream  Code = 205

	GetTopic    Code = 300
	GetTopics   Code = 301
	CreateTopic Code = 302
	DeleteTopic Code = 303
	UpdateTopic Code = 304
	PurgeTopic  Code = 305

	CreatePartitions Code = 402
	DeletePartitions Code = 403

	GetConsumerGroup    Code = 600
	GetConsumerGroups   Code = 601
	CreateConsumerGroup Code = 602
	DeleteConsumerGroup Code = 603
	JoinConsumerGroup   Code = 604
	LeaveConsumerGroup  Code = 605
)

// names maps every known code to its dotted wire name, mirroring the
// sdk's get_name_from_code table exactly.
var names = map[Code]string{
	Ping: "ping",

	GetStats: "stats",

	GetMe:      "me",
	GetClient:  "client.get",
	GetClients: "client.list",

	GetUser:           "user.get",
	GetUsers:          "user.list",
	CreateUser:        "user.create",
	DeleteUser:        "user.delete",
	UpdateUser:        "user.update",
	UpdatePermissions: "user.permissions",
	ChangePassword:    "user.password",
	LoginUser:         "user.login",
	LogoutUser:        "user.logout",

	GetPersonalAccessTokens:      "personal_access_token.list",
	CreatePersonalAccessToken:    "personal_access_token.create",
	DeletePersonalAccessToken:    "personal_access_token.delete",
	LoginWithPersonalAccessToken: "personal_access_token.login",

	PollMessages:       "message.poll",
	SendMessages:       "message.send",
	FlushUnsavedBuffer: "message.flush_unsaved_buffer",

	GetConsumerOffset:   "consumer_offset.get",
	StoreConsumerOffset: "consumer_offset.store",

	GetStream:    "stream.get",
	GetStreams:   "stream.list",
	CreateStream: "stream.create",
	DeleteStream: "stream.delete",
	UpdateStream: "stream.update",
	PurgeStream:  "stream.purge",

	GetTopic:    "topic.get",
	GetTopics:   "topic.list",
	CreateTopic: "topic.create",
	DeleteTopic: "topic.delete",
	UpdateTopic: "topic.update",
	PurgeTopic:  "topic.purge",

	CreatePartitions: "partition.create",
	DeletePartitions: "partition.delete",

	GetConsumerGroup:    "consumer_group.get",
	GetConsumerGroups:   "consumer_group.list",
	CreateConsumerGroup: "consumer_group.create",
	DeleteConsumerGroup: "consumer_group.delete",
	JoinConsumerGroup:   "consumer_group.join",
	LeaveConsumerGroup:  "consumer_group.leave",
}

// Name returns the dotted wire name for code, or false if unknown.
func Name(code Code) (string, bool) {
	name, ok := names[code]
	return name, ok
}

func (c Code) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return "unknown"
}
