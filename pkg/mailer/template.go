package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// ProgressItem is one in-progress milestone shown in the weekly summary.
type ProgressItem struct {
	// Name combines the artist and the milestone, e.g.
	// "Hiatus Kaiyote - 5 Hours Listening".
	Name string
	// TimeLeft is the listening time remaining, e.g. "03 hours 42 minutes".
	TimeLeft string
}

// ReleasePick is one suggested new release.
type ReleasePick struct {
	ArtistID   string
	ArtistName string
	AlbumName  string
	ImageURL   string
}

// WeeklyData carries everything merged into the weekly progress email.
type WeeklyData struct {
	ArtistCount      int
	AlbumCount       int
	TrackCount       int
	CollectibleCount int
	CloseToEarning   []ProgressItem
	TopPicks         []ReleasePick
	// ArtistPageURL prefixes artist ids in release links.
	ArtistPageURL string
}

var weeklyTmpl = template.Must(template.New("weekly").Parse(`<html>
<body style="font-family:'Urbanist',sans-serif">
<h2>Your Weekly Progress</h2>
<p>This week you streamed {{.ArtistCount}} artists, {{.AlbumCount}} albums and {{.TrackCount}} tracks.</p>
<p>Collectibles earned this week: <b>{{.CollectibleCount}}</b></p>
{{if .CloseToEarning}}<h3>Almost there</h3>
<ul>
{{range .CloseToEarning}}<li><b>{{.Name}}</b> is {{.TimeLeft}} away</li>
{{end}}</ul>
{{end}}{{if .TopPicks}}<h3>New music picks</h3>
{{$base := .ArtistPageURL}}{{range .TopPicks}}<p><a href="{{$base}}{{.ArtistID}}" target="_blank" rel="noopener noreferrer"><img src="{{.ImageURL}}" style="border-radius: 8px; border: 0px; width: 156px; height: 156px; margin: 0px;"/></a><br/><span style="font-weight:bold;">{{.ArtistName}}</span><br/>{{.AlbumName}}</p>
{{end}}{{end}}</body>
</html>
`))

var earnedTmpl = template.Must(template.New("earned").Parse(`<html>
<body style="font-family:'Urbanist',sans-serif">
<h2>Congratulations!</h2>
<p>You listened your way to something special. A new collectible is waiting for you to mint.</p>
{{if .}}<ul>
{{range .}}<li>{{.}}</li>
{{end}}</ul>
{{end}}</body>
</html>
`))

// WeeklyProgressEmail builds the weekly summary email for one recipient.
func WeeklyProgressEmail(to string, data WeeklyData) (Request, error) {
	var buf bytes.Buffer
	if err := weeklyTmpl.Execute(&buf, data); err != nil {
		return Request{}, fmt.Errorf("render weekly email: %w", err)
	}
	return Request{
		To:      []string{to},
		Subject: "Your Weekly Progress \U0001F4CA",
		HTML:    buf.String(),
	}, nil
}

// CollectibleEarnedEmail builds the congratulations email sent when a run
// unlocks one or more milestones. One email covers the whole run.
func CollectibleEarnedEmail(to string, earned []string) (Request, error) {
	var buf bytes.Buffer
	if err := earnedTmpl.Execute(&buf, earned); err != nil {
		return Request{}, fmt.Errorf("render earned email: %w", err)
	}
	return Request{
		To:      []string{to},
		Subject: "You Earned a Collectible \U0001F389",
		HTML:    buf.String(),
	}, nil
}
