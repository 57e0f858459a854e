package akuvox

// envelope is the common Akuvox HTTP API answer.
type envelope[T any] struct {
	RetCode int    `json:"retcode"`
	Action  string `json:"action"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type itemList[T any] struct {
	Num  int `json:"num"`
	Item []T `json:"item"`
}

// userItem is one directory entry. Akuvox encodes every field as a string.
type userItem struct {
	ID            string `json:"ID,omitempty"`
	UserID        string `json:"UserID"`
	Name          string `json:"Name"`
	PrivatePIN    string `json:"PrivatePIN,omitempty"`
	CardCode      string `json:"CardCode,omitempty"`
	FaceURL       string `json:"FaceUrl,omitempty"`
	ScheduleRelay string `json:"ScheduleRelay,omitempty"`
	Type          string `json:"Type,omitempty"`
}

type userRef struct {
	ID string `json:"ID"`
}

type command[T any] struct {
	Target string `json:"target"`
	Action string `json:"action"`
	Data   *T     `json:"data,omitempty"`
}

type doorLogItem struct {
	ID     string `json:"ID"`
	Date   string `json:"Date"`
	Time   string `json:"Time"`
	Name   string `json:"Name"`
	UserID string `json:"UserID"`
	Code   string `json:"Code"`
	Type   string `json:"Type"`
	Status string `json:"Status"`
}
