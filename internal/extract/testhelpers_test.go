package extract

// weeklyPipeDoc is a weekly bulletin as MinerU renders it: a two-row header
// whose merged category cells come out as a filled cell followed by blanks.
const weeklyPipeDoc = `# 全国急性呼吸道传染病哨点监测情况（2024年第46周）

2024年第46周（11月11日-11月17日），全国急性呼吸道传染病处于季节性流行水平。

表1 2024年第45-46周全国哨点医院监测病原体阳性率（%）

| 病原体 | 门急诊流感样病例 |  | 住院严重急性呼吸道感染病例 |  |
| --- | --- | --- | --- | --- |
|  | 第45周 | 第46周 | 第45周 | 第46周 |
| 新型冠状病毒 | 3.1 | 2.8 | 1.2 | 1.0 |
| 流感病毒 | 5.0% | 6.2% | 2.0 | - |
| 合计 | 10 | 11 | 3 | 3 |

注：① 阳性率为检测阳性数占检测数的比例。
`

// weeklyHTMLDoc carries the indicator table as markup with merged cells,
// the shape the HTML acquisition path preserves.
const weeklyHTMLDoc = `2025年第6周（2025年2月3日-2月9日）

<table>
<tr><td rowspan="2">病原体</td><td colspan="2">门急诊流感样病例</td><td colspan="2">住院严重急性呼吸道感染病例</td></tr>
<tr><td>第6周</td><td>较上周</td><td>第6周</td><td>较上周</td></tr>
<tr><td>新型冠状病毒</td><td>2.8</td><td>-0.3</td><td>1.0</td><td>-0.2</td></tr>
<tr><td>鼻病毒</td><td>12.3%</td><td>↑0.5</td><td>-</td><td>-</td></tr>
</table>
`

// kangxiDoc uses the Kangxi radicals OCR engines emit for 月 and 日.
const kangxiDoc = "2024年第46周（11⽉11⽇ 11⽉17⽇）\n\n" +
	"| 病原体 | 门急诊流感样病例阳性率 |\n" +
	"| --- | --- |\n" +
	"| 呼吸道合胞病毒 | ４.５％ |\n"

const noTableDoc = `2025年第6周

本周无监测表格。

| 日期 | 备注 |
| --- | --- |
| 2月3日 | 无 |
`
