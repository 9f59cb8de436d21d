package model

type ProfileSummary struct {
	ID          string `json:"id" bson:"_id"`
	DisplayName string `json:"display_name" bson:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty" bson:"avatar_url,omitempty"`
	Role        string `json:"role,omitempty" bson:"role,omitempty"`
}

type PropertySummary struct {
	ID       string `json:"id" bson:"_id"`
	Title    string `json:"title" bson:"title"`
	OwnerID  string `json:"owner_id" bson:"owner_id"`
	City     string `json:"city,omitempty" bson:"city,omitempty"`
	Wilaya   string `json:"wilaya,omitempty" bson:"wilaya,omitempty"`
	CoverURL string `json:"cover_url,omitempty" bson:"cover_url,omitempty"`
}
