package catalog

// Content is one canonical unit of learning content in the global list.
// Identity is ID; entries are appended newest-first and never mutated in
// place by this service.
type Content struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Tags         []string      `json:"tags"`
	Level        string        `json:"level"`
	UploadedBy   string        `json:"uploadedBy,omitempty"`
	VideoURL     string        `json:"videoUrl,omitempty"`
	Views        int           `json:"views"`
	Likes        int           `json:"likes"`
	Organization *Organization `json:"organization,omitempty"`
}

// Organization is a closed variant: a content entity declares at most one of
// the four shapes below, or none at all. Classification dispatches on
// whichever case is present.
type Organization struct {
	Subject    *SubjectPath    `json:"subjectPath,omitempty"`
	Course     *CoursePath     `json:"coursePath,omitempty"`
	Channel    *ChannelPath    `json:"channelPath,omitempty"`
	University *UniversityPath `json:"universityPath,omitempty"`
}

type SubjectPath struct {
	Subject   string `json:"subject"`
	CoreTopic string `json:"coreTopic"`
	Subtopic  string `json:"subtopic,omitempty"`
}

type CoursePath struct {
	Provider   string `json:"provider"`
	CourseName string `json:"courseName"`
	Topic      string `json:"topic,omitempty"`
}

type ChannelPath struct {
	ChannelName  string `json:"channelName"`
	PlaylistName string `json:"playlistName"`
	Topic        string `json:"topic,omitempty"`
}

type UniversityPath struct {
	University string `json:"university"`
	Subject    string `json:"subject"`
	Topic      string `json:"topic,omitempty"`
}

// classify picks the category triple for a content entity from whichever
// organization shape is present.
func classify(org *Organization) (category, subcategory, topic string) {
	switch {
	case org == nil:
		return "General", "Uncategorized", ""
	case org.Subject != nil:
		return orDefault(org.Subject.Subject, "General"),
			orDefault(org.Subject.CoreTopic, "Uncategorized"),
			org.Subject.Subtopic
	case org.Course != nil:
		return orDefault(org.Course.Provider, "Course Platform"),
			orDefault(org.Course.CourseName, "General Course"),
			org.Course.Topic
	case org.Channel != nil:
		return orDefault(org.Channel.ChannelName, "YouTube"),
			orDefault(org.Channel.PlaylistName, "General"),
			org.Channel.Topic
	case org.University != nil:
		return orDefault(org.University.University, "University"),
			orDefault(org.University.Subject, "General"),
			org.University.Topic
	default:
		return "General", "Uncategorized", ""
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
