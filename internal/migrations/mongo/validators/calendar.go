package validators

import "go.mongodb.org/mongo-driver/bson"

// CalendarValidator keys calendars by property id; dates is a map keyed by
// YYYY-MM-DD.
var CalendarValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"version",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"window": bson.M{
				"bsonType": "object",
				"required": []string{"start_date", "end_date"},
				"properties": bson.M{
					"start_date": bson.M{"bsonType": "string", "pattern": datePattern},
					"end_date":   bson.M{"bsonType": "string", "pattern": datePattern},
				},
			},

			"dates": bson.M{
				"bsonType":             "object",
				"additionalProperties": bson.M{
					"bsonType": "object",
					"required": []string{"status"},
					"properties": bson.M{
						"status":             bson.M{"enum": []string{"available", "booked"}},
						"booking_request_id": bson.M{"bsonType": "string"},
					},
				},
			},

			"version": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
