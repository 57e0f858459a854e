package hikvision

import "encoding/xml"

// ISAPI search-session status strings.
const (
	statusOK      = "OK"
	statusMore    = "MORE"
	statusNoMatch = "NO MATCH"
)

// ISAPI JSON wire types (AccessControl).

type userInfoSearchRequest struct {
	UserInfoSearchCond searchCond `json:"UserInfoSearchCond"`
}

type searchCond struct {
	SearchID             string `json:"searchID"`
	SearchResultPosition int    `json:"searchResultPosition"`
	MaxResults           int    `json:"maxResults"`
}

type userInfoSearchResponse struct {
	UserInfoSearch struct {
		SearchID           string     `json:"searchID"`
		ResponseStatusStrg string     `json:"responseStatusStrg"`
		NumOfMatches       int        `json:"numOfMatches"`
		TotalMatches       int        `json:"totalMatches"`
		UserInfo           []userInfo `json:"UserInfo"`
	} `json:"UserInfoSearch"`
}

type userInfo struct {
	EmployeeNo string     `json:"employeeNo"`
	Name       string     `json:"name,omitempty"`
	UserType   string     `json:"userType,omitempty"`
	Password   string     `json:"password,omitempty"`
	NumOfCard  int        `json:"numOfCard,omitempty"`
	NumOfFace  int        `json:"numOfFace,omitempty"`
	Valid      *validity  `json:"Valid,omitempty"`
	DoorRight  string     `json:"doorRight,omitempty"`
	RightPlan  []doorPlan `json:"RightPlan,omitempty"`
}

type validity struct {
	Enable    bool   `json:"enable"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
	TimeType  string `json:"timeType"`
}

type doorPlan struct {
	DoorNo         int    `json:"doorNo"`
	PlanTemplateNo string `json:"planTemplateNo"`
}

type userInfoRecordRequest struct {
	UserInfo userInfo `json:"UserInfo"`
}

type employeeRef struct {
	EmployeeNo string `json:"employeeNo"`
}

type userInfoDeleteRequest struct {
	UserInfoDelCond struct {
		EmployeeNoList []employeeRef `json:"EmployeeNoList"`
	} `json:"UserInfoDelCond"`
}

type cardInfoSearchRequest struct {
	CardInfoSearchCond struct {
		searchCond
		EmployeeNoList []employeeRef `json:"EmployeeNoList"`
	} `json:"CardInfoSearchCond"`
}

type cardInfoSearchResponse struct {
	CardInfoSearch struct {
		ResponseStatusStrg string     `json:"responseStatusStrg"`
		CardInfo           []cardInfo `json:"CardInfo"`
	} `json:"CardInfoSearch"`
}

type cardInfo struct {
	EmployeeNo string `json:"employeeNo"`
	CardNo     string `json:"cardNo"`
	CardType   string `json:"cardType,omitempty"`
}

type cardInfoRecordRequest struct {
	CardInfo cardInfo `json:"CardInfo"`
}

type faceSearchRequest struct {
	SearchResultPosition int    `json:"searchResultPosition"`
	MaxResults           int    `json:"maxResults"`
	FaceLibType          string `json:"faceLibType"`
	FDID                 string `json:"FDID"`
	FPID                 string `json:"FPID"`
}

type faceSearchResponse struct {
	ResponseStatusStrg string `json:"responseStatusStrg"`
	MatchList          []struct {
		FPID    string `json:"FPID"`
		FaceURL string `json:"faceURL"`
	} `json:"MatchList"`
}

type acsEventRequest struct {
	AcsEventCond struct {
		searchCond
		Major int `json:"major"`
		Minor int `json:"minor"`
	} `json:"AcsEventCond"`
}

type acsEventResponse struct {
	AcsEvent struct {
		SearchID           string         `json:"searchID"`
		ResponseStatusStrg string         `json:"responseStatusStrg"`
		NumOfMatches       int            `json:"numOfMatches"`
		TotalMatches       int            `json:"totalMatches"`
		InfoList           []acsEventInfo `json:"InfoList"`
	} `json:"AcsEvent"`
}

type acsEventInfo struct {
	Major             int    `json:"major"`
	Minor             int    `json:"minor"`
	Time              string `json:"time"`
	CardNo            string `json:"cardNo"`
	EmployeeNoString  string `json:"employeeNoString"`
	Name              string `json:"name"`
	SerialNo          int64  `json:"serialNo"`
	CurrentVerifyMode string `json:"currentVerifyMode"`
}

// responseStatus is the generic ISAPI JSON status answer.
type responseStatus struct {
	StatusCode    int    `json:"statusCode"`
	StatusString  string `json:"statusString"`
	SubStatusCode string `json:"subStatusCode"`
	ErrorMsg      string `json:"errorMsg"`
}

// ISAPI XML wire types (Traffic).

type lpSearchCond struct {
	XMLName              xml.Name `xml:"LPSearchCond"`
	SearchID             string   `xml:"searchID"`
	MaxResult            int      `xml:"maxResult"`
	SearchResultPosition int      `xml:"searchResultPosition"`
}

type lpListAuditSearchResult struct {
	XMLName            xml.Name           `xml:"LPListAuditSearchResult"`
	SearchID           string             `xml:"searchID"`
	ResponseStatusStrg string             `xml:"responseStatusStrg"`
	NumOfMatches       int                `xml:"numOfMatches"`
	TotalMatches       int                `xml:"totalMatches"`
	Plates             []licensePlateInfo `xml:"LicensePlateInfoList>LicensePlateInfo"`
}

type licensePlateInfo struct {
	ID           int    `xml:"id" json:"id,omitempty"`
	LicensePlate string `xml:"LicensePlate" json:"LicensePlate"`
	ListType     string `xml:"listType" json:"listType"`
	CardNo       string `xml:"cardNo" json:"cardNo,omitempty"`
	StartDate    string `xml:"effectiveStartDate" json:"effectiveStartDate,omitempty"`
	EndDate      string `xml:"effectiveTime" json:"effectiveTime,omitempty"`
}

type licensePlateRecordRequest struct {
	LicensePlateInfoList []licensePlateInfo `json:"LicensePlateInfoList"`
}

type licensePlateDeleteRequest struct {
	ID []string `json:"id"`
}
