package matching_test

import (
	"errors"
	"testing"

	"github.com/okian/vidrank/internal/domain/matching"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodeSettings(t *testing.T) {
	Convey("Given absent settings", t, func() {
		Convey("Then Random is the default", func() {
			for _, raw := range []string{"", "  ", "null", "{}", `{"random_strategy":null,"by_rating_strategy":null,"finetune_strategy":null,"by_date_strategy":null}`} {
				s, err := matching.DecodeSettings([]byte(raw))
				So(err, ShouldBeNil)
				So(s, ShouldResemble, matching.Random{})
			}
		})
	})

	Convey("Given the tagged client shape", t, func() {
		cases := map[string]matching.Strategy{
			`{"random_strategy":{},"by_rating_strategy":null,"finetune_strategy":null,"by_date_strategy":null}`: matching.Random{},
			`{"by_rating_strategy":{}}`:                      matching.ByRating{},
			`{"finetune_strategy":{"fraction":0.25}}`:        matching.Finetune{Fraction: 0.25},
			`{"by_date_strategy":{"days":14}}`:               matching.ByDate{Days: 14},
			`{"balanced_strategy":{"random_fraction":0.3}}`: matching.Balanced{RandomFraction: 0.3},
		}

		Convey("Then each variant decodes to its strategy", func() {
			for raw, want := range cases {
				s, err := matching.DecodeSettings([]byte(raw))
				So(err, ShouldBeNil)
				So(s, ShouldResemble, want)
			}
		})

		Convey("When two variants are set", func() {
			_, err := matching.DecodeSettings([]byte(`{"random_strategy":{},"by_rating_strategy":{}}`))
			So(errors.Is(err, matching.ErrInvalidSettings), ShouldBeTrue)
		})

		Convey("When a parameter is missing or out of range", func() {
			for _, raw := range []string{
				`{"finetune_strategy":{}}`,
				`{"finetune_strategy":{"fraction":0}}`,
				`{"finetune_strategy":{"fraction":1.01}}`,
				`{"by_date_strategy":{"days":0}}`,
				`{"by_date_strategy":{}}`,
				`{"balanced_strategy":{"random_fraction":2}}`,
			} {
				_, err := matching.DecodeSettings([]byte(raw))
				So(errors.Is(err, matching.ErrInvalidSettings), ShouldBeTrue)
			}
		})

		Convey("When an unknown variant is named", func() {
			_, err := matching.DecodeSettings([]byte(`{"popularity_strategy":{}}`))
			So(errors.Is(err, matching.ErrUnknownStrategy), ShouldBeTrue)
		})
	})

	Convey("Given the flat server shape", t, func() {
		Convey("Then named strategies decode", func() {
			s, err := matching.DecodeSettings([]byte(`{"matching_strategy":"by_rating","balanced_random_fraction":0.5}`))
			So(err, ShouldBeNil)
			So(s, ShouldResemble, matching.ByRating{})

			s, err = matching.DecodeSettings([]byte(`{"matching_strategy":"balanced","balanced_random_fraction":0.2}`))
			So(err, ShouldBeNil)
			So(s, ShouldResemble, matching.Balanced{RandomFraction: 0.2})
		})

		Convey("Then a null strategy with a fraction means balanced", func() {
			s, err := matching.DecodeSettings([]byte(`{"matching_strategy":null,"balanced_random_fraction":0.7}`))
			So(err, ShouldBeNil)
			So(s, ShouldResemble, matching.Balanced{RandomFraction: 0.7})
		})

		Convey("When the strategy name is unknown", func() {
			_, err := matching.DecodeSettings([]byte(`{"matching_strategy":"popularity","balanced_random_fraction":0.5}`))
			So(errors.Is(err, matching.ErrUnknownStrategy), ShouldBeTrue)
		})

		Convey("When balanced lacks its fraction", func() {
			_, err := matching.DecodeSettings([]byte(`{"matching_strategy":"balanced"}`))
			So(errors.Is(err, matching.ErrInvalidSettings), ShouldBeTrue)
		})

		Convey("When flat and tagged fields are mixed", func() {
			_, err := matching.DecodeSettings([]byte(`{"matching_strategy":"random","by_rating_strategy":{}}`))
			So(errors.Is(err, matching.ErrInvalidSettings), ShouldBeTrue)
		})
	})

	Convey("Given malformed JSON", t, func() {
		_, err := matching.DecodeSettings([]byte(`[1,2`))
		So(errors.Is(err, matching.ErrInvalidSettings), ShouldBeTrue)
	})
}

func TestEncodeSettings(t *testing.T) {
	Convey("Given each strategy", t, func() {
		Convey("Then encoding produces a single tagged key that decodes back", func() {
			for _, s := range []matching.Strategy{
				matching.Random{},
				matching.ByRating{},
				matching.Finetune{Fraction: 0.5},
				matching.ByDate{Days: 3},
				matching.Balanced{RandomFraction: 0.1},
			} {
				raw, err := matching.EncodeSettings(s)
				So(err, ShouldBeNil)
				back, err := matching.DecodeSettings(raw)
				So(err, ShouldBeNil)
				So(back, ShouldResemble, s)
			}
		})

		Convey("Then invalid strategies are refused", func() {
			_, err := matching.EncodeSettings(matching.Finetune{Fraction: 3})
			So(errors.Is(err, matching.ErrInvalidSettings), ShouldBeTrue)
		})

		Convey("Then the tagged key names are stable", func() {
			raw, err := matching.EncodeSettings(matching.ByDate{Days: 3})
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, `{"by_date_strategy":{"days":3}}`)
		})
	})
}

func TestFromName(t *testing.T) {
	Convey("Given strategy names from configuration", t, func() {
		p := matching.Params{FinetuneFraction: 0.2, ByDateDays: 7, BalancedRandomFraction: 0.4}

		Convey("Then each name builds its strategy", func() {
			s, err := matching.FromName("", p)
			So(err, ShouldBeNil)
			So(s, ShouldResemble, matching.Random{})

			s, err = matching.FromName(matching.NameFinetune, p)
			So(err, ShouldBeNil)
			So(s, ShouldResemble, matching.Finetune{Fraction: 0.2})

			s, err = matching.FromName(matching.NameByDate, p)
			So(err, ShouldBeNil)
			So(s, ShouldResemble, matching.ByDate{Days: 7})

			s, err = matching.FromName(matching.NameBalanced, p)
			So(err, ShouldBeNil)
			So(s.Name(), ShouldEqual, matching.NameBalanced)
		})

		Convey("When the name is unknown", func() {
			_, err := matching.FromName("nope", p)
			So(errors.Is(err, matching.ErrUnknownStrategy), ShouldBeTrue)
		})

		Convey("When parameters are invalid", func() {
			_, err := matching.FromName(matching.NameFinetune, matching.Params{})
			So(errors.Is(err, matching.ErrInvalidSettings), ShouldBeTrue)
		})
	})
}
